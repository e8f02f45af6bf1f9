package historydb

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Entry is one predict call, successful or not
type Entry struct {
	BaseModel
	CreatedAt  dbh.IntTime            `json:"createdAt"`
	Filename   string                 `json:"filename"`   // Content-addressed upload name, eg "ba7816bf8f01cfea.jpg"
	Kind       string                 `json:"kind"`       // "image" or "video"
	Model      string                 `json:"model"`      // eg "YOLO Classifier"
	Path       string                 `json:"path"`       // Annotated artifact, eg "assets/ba7816bf8f01cfea_predicted.jpg". Empty if there is none.
	ArchiveURL string                 `json:"archiveUrl"` // Public URL of the archived artifact, if the archive has public URLs
	NumResults int                    `json:"numResults"` // Number of predictions (image), or number of frames with detections (video)
	Params     *dbh.JSONField[Params] `json:"params"`
	DurationMS int64                  `json:"durationMS"`
	Error      string                 `json:"error"`
}

func (Entry) TableName() string {
	return "history"
}

// Params are the query parameters of a predict call
type Params struct {
	Conf        float32 `json:"conf,omitempty"`
	ImageSize   int     `json:"imgsz"`
	SpeedFactor float64 `json:"speedFactor,omitempty"`
}
