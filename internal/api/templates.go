package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/internal/server"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
	filecheck "github.com/FocuswithJustin/hwpxreport/internal/validation"
)

// sniffLen is how much of an upload is inspected before it is stored.
const sniffLen = 512

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTemplatesHandler(w, r)
	case http.MethodPost:
		s.uploadTemplateHandler(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET and POST are allowed")
	}
}

func (s *Server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.templates.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if tpls == nil {
		tpls = []*templates.Template{}
	}
	respondMeta(w, http.StatusOK, tpls, &APIMeta{Total: len(tpls)})
}

// uploadTemplateHandler accepts a multipart form with a "file" part, or a
// raw archive body with metadata in the query string. It answers 201 for a
// new template and 200 when an identical archive was already stored.
func (s *Server) uploadTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var (
		body     io.Reader
		filename = "template" + filecheck.OutputExtension
		get      func(string) string
	)
	limit := s.templates.MaxBytes()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
		if err := r.ParseMultipartForm(formOverhead); err != nil {
			respondErr(w, r, bodyError(err, "template", limit))
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, header, err := r.FormFile("file")
		if err != nil {
			respondErr(w, r, errors.NewValidation("file", "template file is required"))
			return
		}
		defer file.Close()
		body = file
		filename = header.Filename
		get = r.FormValue

	case server.ValidateContentType(mediaType, server.TemplateUploadContentTypes):
		// One byte past the ceiling lets the store report the size error.
		r.Body = http.MaxBytesReader(w, r.Body, limit+1)
		body = r.Body
		get = r.URL.Query().Get

	default:
		respondError(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia,
			"Upload a multipart form or an application/hwp+zip body")
		return
	}

	opts := templates.UploadOptions{
		Name:        get("name"),
		Description: get("description"),
	}
	if v := get("default"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondErr(w, r, errors.NewValidation("default", "must be true or false"))
			return
		}
		opts.Default = b
	}

	body, err := sniffTemplate(body, filename)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tpl, existed, err := s.templates.Upload(r.Context(), body, opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	respond(w, status, tpl)
}

// sniffTemplate checks that an upload starts like an HWPX archive and that
// its filename agrees. The returned reader replays the sniffed header.
func sniffTemplate(body io.Reader, filename string) (io.Reader, error) {
	br := bufio.NewReaderSize(body, sniffLen)
	head, _ := br.Peek(sniffLen)
	ft, err := filecheck.ValidateFileType(bytes.NewReader(head), filename)
	if err == nil && ft != filecheck.FileTypeHWPX {
		err = fmt.Errorf("content is %s", ft)
	}
	if err != nil {
		return nil, &errors.ValidationError{Field: "file", Message: "template must be an HWPX archive", Err: err}
	}
	return br, nil
}

func (s *Server) handleTemplateByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/templates/")
	if id == "" {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "Template ID is required")
		return
	}
	if err := isID(id); err != nil {
		respondErr(w, r, errors.NewNotFound("template", id))
		return
	}

	switch r.Method {
	case http.MethodGet:
		tpl, err := s.templates.Get(r.Context(), id)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, tpl)
	case http.MethodDelete:
		if err := s.templates.Delete(r.Context(), id); err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
	default:
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET and DELETE are allowed")
	}
}
