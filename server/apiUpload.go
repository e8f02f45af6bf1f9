package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/leafscan/leafscan/pkg/iox"
	"github.com/leafscan/leafscan/pkg/media"
)

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// Accepted names of the multipart field that holds the file
var uploadFields = []string{"file", "image"}

// sendJSONStatus is SendJSON with a status code other than 200
func sendJSONStatus(w http.ResponseWriter, code int, obj any) {
	b, err := json.Marshal(obj)
	www.Check(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func (s *Server) httpUpload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	maxBytes := int64(s.config.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 * 1024 * 1024); err != nil {
		s.metrics.RecordUpload("", 0, err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			www.Panic(http.StatusRequestEntityTooLarge, fmt.Sprintf("File is larger than %v MB", s.config.MaxUploadMB))
		}
		www.PanicBadRequestf("Invalid multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header := formFile(r)
	if file == nil {
		s.metrics.RecordUpload("", 0, errors.New("missing file"))
		www.PanicBadRequestf("Missing 'file' field")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	kind, err := media.Validate(contentType, header.Filename)
	if err != nil {
		s.metrics.RecordUpload("", 0, err)
		www.PanicBadRequestf("%v", err.Error())
	}

	asset, err := s.saveUpload(file, header.Filename)
	s.metrics.RecordUpload(kind.String(), header.Size, err)
	if err != nil {
		s.Log.Errorf("Failed to save upload %v: %v", header.Filename, err)
		www.PanicServerErrorf("There was an error uploading the file: %v", err)
	}
	s.Log.Infof("Uploaded %v (%v, %v bytes) as %v", header.Filename, contentType, header.Size, asset.StoragePath)

	sendJSONStatus(w, http.StatusCreated, &uploadResponse{
		Message:  "File uploaded successfully",
		Filename: asset.StoragePath,
	})
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader) {
	for _, field := range uploadFields {
		if file, header, err := r.FormFile(field); err == nil {
			return file, header
		}
	}
	return nil, nil
}

// saveUpload writes the file to {hash}.{ext} in the upload directory.
// An existing file of the same name has identical content, and is replaced.
func (s *Server) saveUpload(file multipart.File, originalName string) (media.Asset, error) {
	asset, err := media.AddressFile(file, originalName)
	if err != nil {
		return asset, err
	}
	_, err = iox.WriteStreamToFile(filepath.Join(s.config.UploadDir, asset.StoragePath), file)
	return asset, err
}
