package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/db"
)

// EmployeePublic is the client-visible projection, and the shape stored in
// the result cache.
type EmployeePublic struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	ObjectKey string `json:"object_key,omitempty"`
	FullName  string `json:"full_name"`
	Location  string `json:"location"`
	JobTitle  string `json:"job_title"`
	Badges    string `json:"badges"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// Employee is returned from writes.
type Employee struct {
	EmployeePublic
	CreatedAt time.Time `json:"created_datetime"`
}

// PhotoUpload is a new photo supplied with a save.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// SaveInput creates an employee when EmployeeID is zero and updates it
// otherwise. A nil Photo keeps the current one.
type SaveInput struct {
	EmployeeID int64
	FullName   string
	Location   string
	JobTitle   string
	Badges     string
	Photo      *PhotoUpload
}

func (s *Service) project(e *db.Employee) EmployeePublic {
	p := EmployeePublic{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		ObjectKey: e.ObjectKey,
		FullName:  e.FullName,
		Location:  e.Location,
		JobTitle:  e.JobTitle,
		Badges:    e.Badges,
	}
	if e.ObjectKey != "" {
		p.PhotoURL = s.photoURLPrefix + "/" + e.ObjectKey
	}
	return p
}

func decodeList(b []byte, ownerID int64) ([]EmployeePublic, error) {
	var list []EmployeePublic
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDeserialization, err)
	}
	if list == nil {
		return nil, fmt.Errorf("%w: list payload is null", apperr.ErrDeserialization)
	}
	for _, e := range list {
		if e.ID <= 0 || e.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: list entry %d does not belong to owner %d", apperr.ErrDeserialization, e.ID, ownerID)
		}
	}
	return list, nil
}

func decodeEntry(b []byte, id int64) (*EmployeePublic, error) {
	var e EmployeePublic
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDeserialization, err)
	}
	if e.ID != id || e.OwnerID <= 0 {
		return nil, fmt.Errorf("%w: entry payload does not describe employee %d", apperr.ErrDeserialization, id)
	}
	return &e, nil
}
