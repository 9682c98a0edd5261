package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"hostflow/internal/engine"
)

// multipartOverhead is allowed on top of the media size limit for part headers.
const multipartOverhead = 1 << 20

// registerMedia mounts the raw multipart upload and download routes. They
// bypass huma so the body streams straight into the multipart reader.
func registerMedia(r chi.Router, e engine.Engine, basePath string) {
	r.Post(path.Join(basePath, "entities/{id}/media"), func(w http.ResponseWriter, req *http.Request) {
		actor, authErr := actorFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		limit := e.MaxUploadBytes()
		req.Body = http.MaxBytesReader(w, req.Body, limit+multipartOverhead)
		files, err := readUploads(req, limit)
		if err != nil {
			respondStatusError(w, uploadError(err))
			return
		}
		items, err := e.AddMedia(req.Context(), actor, chi.URLParam(req, "id"), files)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mediaList{Items: mediaResponses(basePath, items)})
	})

	r.Get(path.Join(basePath, "media/{id}"), func(w http.ResponseWriter, req *http.Request) {
		actor, authErr := actorFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		m, err := e.MediaData(req.Context(), actor, chi.URLParam(req, "id"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", m.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(m.Size, 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.Name))
		_, _ = w.Write(m.Data)
	})
}

// readUploads collects the "files" parts in order. It stops early once the
// payload is known to exceed limit.
func readUploads(req *http.Request, limit int64) ([]engine.Upload, error) {
	mr, err := req.MultipartReader()
	if err != nil {
		return nil, err
	}
	var (
		files []engine.Upload
		total int64
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "files" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, limit-total+1))
		part.Close()
		if err != nil {
			return nil, err
		}
		total += int64(len(data))
		if total > limit {
			return nil, engine.ErrPayloadTooLarge
		}
		files = append(files, engine.Upload{
			Name:        part.FileName(),
			ContentType: partContentType(part),
			Data:        data,
		})
	}
	if len(files) == 0 {
		return nil, errors.New("no files in upload; use the \"files\" form field")
	}
	return files, nil
}

func partContentType(p *multipart.Part) string {
	if ct := p.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func uploadError(err error) huma.StatusError {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return handleError(engine.ErrPayloadTooLarge)
	}
	if errors.Is(err, engine.ErrPayloadTooLarge) {
		return handleError(err)
	}
	return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
}
