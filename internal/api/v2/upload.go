package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// upload is one file part of a multipart request.
type upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// isImage reports whether the part declares an image content type.
func (u upload) isImage() bool {
	return strings.HasPrefix(u.ContentType, "image/")
}

func readUpload(fh *multipart.FileHeader) (upload, error) {
	f, err := fh.Open()
	if err != nil {
		return upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close() //nolint:errcheck // read-only multipart part

	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}

// formFile reads the single file part named field.
func formFile(ctx echo.Context, field string) (upload, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return upload{}, echo.NewHTTPError(http.StatusBadRequest, field+" is required").SetInternal(err)
	}
	u, err := readUpload(fh)
	if err != nil {
		return upload{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid upload: "+err.Error())
	}
	return u, nil
}

// formFiles reads every file part named field. Parts are read lazily by the
// caller so that oversized batches are rejected before any file is read.
func formFiles(ctx echo.Context, field string) ([]*multipart.FileHeader, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid multipart form: "+err.Error())
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "No files provided")
	}
	return files, nil
}

// Query and form parameters share one namespace, as FormValue reads both.

func floatParam(ctx echo.Context, name string, def float64) (float64, error) {
	raw := ctx.FormValue(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q is not a number", name, raw))
	}
	return v, nil
}

func intParam(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.FormValue(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q is not an integer", name, raw))
	}
	return v, nil
}

func boolParam(ctx echo.Context, name string, def bool) (bool, error) {
	raw := ctx.FormValue(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q is not a boolean", name, raw))
	}
	return v, nil
}
