package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core/plagiarism"
)

// CheckRequest compares Text against an ad hoc Corpus; nothing is stored.
type CheckRequest struct {
	Text   string   `json:"text"`
	Corpus []string `json:"corpus" validate:"max=1000"`
}

func (cr CheckRequest) Validate(validate *validator.Validate) error { return validate.Struct(cr) }

type plagiarismApi struct {
	validate *validator.Validate
}

func registerPlagiarismAPI(g *echo.Group, validate *validator.Validate) {
	api := plagiarismApi{validate: validate}

	pg := g.Group("/plagiarism")
	pg.POST("/check", api.check)
}

func (api *plagiarismApi) check(ctx echo.Context) error {
	var data CheckRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, plagiarism.Check(data.Text, data.Corpus))
}
