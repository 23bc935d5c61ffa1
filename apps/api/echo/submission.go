package echoapi

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/plagiarism"
	"github.com/trezcool/plagiat/core/submission"
)

var (
	orderableFields = []string{
		"assignment", "student_name", "title", "is_active", "created_at", "plagiarised_percent", "flagged", "checked_at",
	}

	errInvalidFile = errors.New("invalid file")
)

// ReportResponse is the stored report of a Submission along with its HTML-highlighted content.
type ReportResponse struct {
	Report      plagiarism.MatchReport `json:"report"`
	Highlighted string                 `json:"highlighted"`
}

type submissionApi struct {
	svc           *submission.Service
	validate      *validator.Validate
	maxUploadSize int64
}

func registerSubmissionAPI(g *echo.Group, svc *submission.Service, validate *validator.Validate, maxUploadSize int64) {
	api := submissionApi{
		svc:           svc,
		validate:      validate,
		maxUploadSize: maxUploadSize,
	}

	sg := g.Group("/submissions")
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.DELETE("", api.destroyMultiple)

	// detail endpoints
	dg := sg.Group("/:id", submissionMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/report", api.report)
	dg.POST("/recheck", api.recheck)

	ag := g.Group("/assignments/:assignment")
	ag.POST("/recheck", api.recheckAssignment)
	ag.POST("/preview", api.preview)
}

// submissionMiddleware loads the Submission of the `:id` path param into the context.
func submissionMiddleware(svc *submission.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sub, err := svc.Get(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding submission by ID")
			}
			ctx.Set("object", sub)
			return next(ctx)
		}
	}
}

func contextSubmission(ctx echo.Context) (submission.Submission, error) {
	sub, ok := ctx.Get("object").(submission.Submission)
	if !ok {
		return submission.Submission{}, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return sub, nil
}

// readFile returns the content of the optional `file` form field, which must be UTF-8 text.
func (api *submissionApi) readFile(ctx echo.Context) (string, error) {
	fh, err := ctx.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "reading form file")
	}
	if fh.Size > api.maxUploadSize {
		return "", core.NewValidationError(errInvalidFile, core.FieldError{
			Field: "file",
			Error: fmt.Sprintf("file cannot exceed %s", bytes.Format(api.maxUploadSize)),
		})
	}

	f, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening form file")
	}
	defer func() { _ = f.Close() }()

	data, err := ioutil.ReadAll(io.LimitReader(f, api.maxUploadSize))
	if err != nil {
		return "", errors.Wrap(err, "reading form file")
	}
	if !utf8.Valid(data) {
		return "", core.NewValidationError(errInvalidFile, core.FieldError{Field: "file", Error: "file must be UTF-8 plain text"})
	}
	return string(data), nil
}

// filterParamError names the first QueryFilter param that failed to bind.
func filterParamError(ctx echo.Context, err error) error {
	for _, name := range []string{"is_active", "flagged"} {
		if val := ctx.QueryParam(name); val != "" {
			if _, perr := strconv.ParseBool(val); perr != nil {
				return core.NewValidationError(err, core.FieldError{Field: name, Error: "must be true or false"})
			}
		}
	}
	for _, name := range []string{"created_from", "created_to"} {
		if val := ctx.QueryParam(name); val != "" {
			if _, perr := time.Parse(time.RFC3339, val); perr != nil {
				return core.NewValidationError(err, core.FieldError{Field: name, Error: "must be an RFC 3339 date-time"})
			}
		}
	}
	return core.NewValidationError(err, core.FieldError{Field: "query", Error: "invalid query parameters"})
}

// Handlers

func (api *submissionApi) create(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		content, err := api.readFile(ctx)
		if err != nil {
			return err
		}
		if content != "" {
			data.Content = content
		}
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *submissionApi) query(ctx echo.Context) error {
	filter := new(submission.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return filterParamError(ctx, err)
	}
	filter.Clean()
	ordering := new(Ordering)
	if err := ordering.Bind(ctx, orderableFields...); err != nil {
		return err
	}

	subs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	sub, err := contextSubmission(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) report(ctx echo.Context) error {
	sub, err := contextSubmission(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReportResponse{
		Report:      sub.Report(),
		Highlighted: plagiarism.Highlight(sub.Content, sub.MatchingChunks),
	})
}

func (api *submissionApi) recheck(ctx echo.Context) error {
	sub, err := contextSubmission(ctx)
	if err != nil {
		return err
	}
	sub, err = api.svc.Recheck(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "rechecking submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) update(ctx echo.Context) error {
	sub, err := contextSubmission(ctx)
	if err != nil {
		return err
	}

	var data submission.UpdateSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err = api.svc.Update(ctx.Request().Context(), sub.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) destroy(ctx echo.Context) error {
	sub, err := contextSubmission(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.Delete(ctx.Request().Context(), sub.ID); err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *submissionApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting submissions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *submissionApi) recheckAssignment(ctx echo.Context) error {
	data := submission.RecheckRequest{Assignment: ctx.Param("assignment")}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	summary, err := api.svc.RecheckAssignment(ctx.Request().Context(), data.Assignment)
	if err != nil {
		return errors.Wrapf(err, "rechecking assignment %q", data.Assignment)
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *submissionApi) preview(ctx echo.Context) error {
	var data submission.PreviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreviewRequest")
	}
	data.Assignment = ctx.Param("assignment")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	report, err := api.svc.Preview(ctx.Request().Context(), data.Assignment, data.Text)
	if err != nil {
		return errors.Wrap(err, "previewing")
	}
	return ctx.JSON(http.StatusOK, report)
}
