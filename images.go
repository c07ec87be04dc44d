package arya

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/upload"
)

const uploadField = "files"

func (a *App) handleImageUpload(c echo.Context) error {
	if err := c.Request().ParseMultipartForm(a.Config.MaxUploadMemory); err != nil {
		return errs.Wrap(errs.ValidationFailed, "invalid multipart body", err).
			WithHint("send the images as multipart form field \"files\"")
	}
	headers := c.Request().MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return errs.New(errs.ValidationFailed, "no files provided").
			WithHint("send the images as multipart form field \"files\"")
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	results, err := a.UploadImages(c.Request().Context(), files, func(p upload.Progress) {
		a.logger.Debug("upload progress",
			zap.String("file", p.File),
			zap.Int("index", p.Index),
			zap.String("stage", p.Stage),
			zap.Int("percent", p.Percent))
	})
	if err != nil {
		return err
	}
	ok := lo.CountBy(results, func(r upload.Result) bool { return r.Success })
	return c.JSON(http.StatusOK, UploadResponse{
		Results:   results,
		Succeeded: ok,
		Failed:    len(results) - ok,
	})
}

// readUpload reads at most one byte past the size limit so oversized files
// are rejected by validation without buffering them whole.
func readUpload(fh *multipart.FileHeader) (upload.File, error) {
	src, err := fh.Open()
	if err != nil {
		return upload.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, upload.MaxFileSize+1))
	if err != nil {
		return upload.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return upload.File{
		Name: fh.Filename,
		MIME: fh.Header.Get(echo.HeaderContentType),
		Data: data,
	}, nil
}

func (a *App) handleImageList(c echo.Context) error {
	u, err := a.Uploader()
	if err != nil {
		return err
	}
	images, err := u.ListImages(c.Request().Context(), c.QueryParam("path"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, images)
}

func (a *App) handleImageDelete(c echo.Context) error {
	var req DeleteImageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := a.DeleteImage(c.Request().Context(), req.Path, req.SHA); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
