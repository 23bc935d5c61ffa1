package core

type (
	// Logger is any service that can log & report messages.
	// args can hold errors, a map[string]interface{} of extras or a Person.
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Person identifies whoever a logged message is about.
	Person struct {
		ID    string
		Name  string
		Email string
	}
)
