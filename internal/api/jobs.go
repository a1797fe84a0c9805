package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/hwpx"
	"github.com/FocuswithJustin/hwpxreport/internal/server"
	filecheck "github.com/FocuswithJustin/hwpxreport/internal/validation"
)

// formOverhead covers multipart framing and the non-source fields.
const formOverhead = 1 << 20

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createJobHandler(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only POST is allowed")
	}
}

// createJobHandler accepts JSON, multipart or urlencoded forms, or a plain
// text body with options in the query string.
func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeSubmission(w, r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondErr(w, r, err)
		return
	}
	jobReq, err := req.JobRequest()
	if err != nil {
		respondErr(w, r, err)
		return
	}

	job, err := s.jobs.Create(r.Context(), jobReq)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	respond(w, http.StatusAccepted, job)
}

func (s *Server) decodeSubmission(w http.ResponseWriter, r *http.Request) (SubmitRequest, error) {
	var req SubmitRequest
	maxSource := s.jobs.MaxSourceBytes()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/json":
		// JSON escaping can expand the source up to six times.
		r.Body = http.MaxBytesReader(w, r.Body, 6*maxSource+formOverhead)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, bodyError(err, "source", maxSource)
		}
		return req, nil

	case mediaType == "multipart/form-data" || mediaType == "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxSource+formOverhead)
		if err := r.ParseMultipartForm(maxSource + formOverhead); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, bodyError(err, "source", maxSource)
		}
		req.Source = r.FormValue("source")
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxSource+1))
			if err != nil {
				return req, errors.NewValidation("file", "failed to read uploaded file")
			}
			if err := checkSourceFile(data, header.Filename); err != nil {
				return req, err
			}
			req.Source = string(data)
		}
		if err := submissionOptions(&req, r.FormValue); err != nil {
			return req, err
		}
		if styles := r.FormValue("styles"); styles != "" {
			req.Styles = json.RawMessage(styles)
		}
		return req, nil

	case server.ValidateContentType(mediaType, server.SourceContentTypes):
		r.Body = http.MaxBytesReader(w, r.Body, maxSource+1)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return req, bodyError(err, "source", maxSource)
		}
		req.Source = string(data)
		return req, submissionOptions(&req, r.URL.Query().Get)
	}

	return req, errors.NewValidation("content_type",
		fmt.Sprintf("unsupported content type %q", r.Header.Get("Content-Type")))
}

// checkSourceFile rejects an uploaded source file whose content is not text
// or does not match its extension, such as an archive sent as draft.md.
func checkSourceFile(data []byte, filename string) error {
	if len(data) == 0 {
		return nil
	}
	ft, err := filecheck.ValidateFileType(bytes.NewReader(data), filename)
	if err == nil && ft != filecheck.FileTypeText && ft != filecheck.FileTypeXML {
		err = fmt.Errorf("content is %s", ft)
	}
	if err != nil {
		return &errors.ValidationError{Field: "file", Message: "source file must be UTF-8 text", Err: err}
	}
	return nil
}

// submissionOptions reads the non-source fields from a form or query string.
func submissionOptions(req *SubmitRequest, get func(string) string) error {
	req.TemplateID = get("template_id")
	req.Filename = get("filename")
	req.StyleSpec = get("style_spec")
	if v := get("preprocess"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.NewValidation("preprocess", "must be true or false")
		}
		req.Preprocess = &b
	}
	return nil
}

// bodyError reports an oversized body against field, anything else as malformed.
func bodyError(err error, field string, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &errors.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s exceeds %d bytes", field, limit),
			Err:     err,
		}
	}
	return &errors.ValidationError{Field: "body", Message: "malformed request body", Err: err}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		respondError(w, http.StatusBadRequest, codeInvalidRequest, "Job ID is required")
		return
	}
	if err := isID(id); err != nil {
		respondErr(w, r, errors.NewNotFound("job", id))
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET is allowed")
		return
	}

	switch action {
	case "":
		s.getJobHandler(w, r, id)
	case "download":
		s.downloadHandler(w, r, id)
	default:
		respondError(w, http.StatusNotFound, codeNotFound, "Endpoint not found")
	}
}

func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, job)
}

// downloadHandler streams the output of a completed job. The handle keeps
// the output from being expired until the response is written.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request, id string) {
	d, err := s.jobs.Open(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	defer d.Close()

	var modTime time.Time
	if d.Job.FinishedAt != nil {
		modTime = *d.Job.FinishedAt
	}
	w.Header().Set("Content-Type", hwpx.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition(d.Job.Filename))
	http.ServeContent(w, r, d.Job.Filename, modTime, d.File)
}

// contentDisposition builds an attachment header with an ASCII fallback name
// and the UTF-8 name in RFC 5987 form.
func contentDisposition(name string) string {
	var fallback strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r > 0x7e:
			fallback.WriteByte('_')
		default:
			fallback.WriteRune(r)
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback.String(), encodeRFC5987(name))
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
