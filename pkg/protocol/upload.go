// Package protocol defines the message a capture session sends to its
// remote endpoint.
//
// The wire format is a single JSON object per WebSocket text message:
//
//	{"fileName": "selfie.jpg", "data": "<base64, no data URI prefix>"}
//
// No reply is defined.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxFileNameLen bounds Upload.FileName.
const MaxFileNameLen = 255

// ErrInvalidUpload wraps every validation failure.
var ErrInvalidUpload = errors.New("invalid upload")

// Upload carries one encoded image.
type Upload struct {
	FileName string `json:"fileName" validate:"required,max=255,excludesall=/\\"`
	Data     string `json:"data" validate:"required,base64"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NewUpload base64-encodes data under fileName.
func NewUpload(fileName string, data []byte) *Upload {
	return &Upload{
		FileName: fileName,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// Validate checks the file name is a bare name and the data is base64.
func (u *Upload) Validate() error {
	if err := validatorInstance().Struct(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidUpload, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	if u.FileName == "." || u.FileName == ".." {
		return fmt.Errorf("%w: fileName %q", ErrInvalidUpload, u.FileName)
	}
	return nil
}

// Decode returns the raw bytes carried in Data.
func (u *Upload) Decode() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(u.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidUpload, err)
	}
	return b, nil
}

// Bytes returns the JSON encoding.
func (u *Upload) Bytes() ([]byte, error) {
	return json.Marshal(u)
}

// ParseUpload parses and validates an upload message.
func ParseUpload(data []byte) (*Upload, error) {
	var u Upload
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}
