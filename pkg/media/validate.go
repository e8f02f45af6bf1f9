package media

import "fmt"

// Kind is the broad media type of an upload, which decides the model pathway
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	}
	return "unknown"
}

var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/jpg":  true,
}

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// ValidationError is a client-side mistake, such as uploading an unsupported file type
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate accepts an upload only if the declared content type and the filename
// extension form one of the sanctioned pairs. Each half must agree with the other,
// so a ".png" declared as "video/mp4" is rejected.
func Validate(contentType, filename string) (Kind, error) {
	ext := Extension(filename)
	if imageContentTypes[contentType] && imageExtensions[ext] {
		return KindImage, nil
	}
	if contentType == "video/mp4" && ext == "mp4" {
		return KindVideo, nil
	}
	return KindUnknown, &ValidationError{
		Message: fmt.Sprintf("Unsupported file type. Received content-type: '%v'.", contentType),
	}
}

// KindForExtension decides which pipeline handles a stored file
func KindForExtension(ext string) Kind {
	if imageExtensions[ext] {
		return KindImage
	}
	if ext == "mp4" {
		return KindVideo
	}
	return KindUnknown
}
