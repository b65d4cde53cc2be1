package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/usecase/lifecycle"
)

type reporterDocument struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type locationDocument struct {
	Type        string   `json:"type"`
	Street      string   `json:"street"`
	HouseNumber *int     `json:"house_number"`
	HouseLetter string   `json:"house_letter"`
	Suffix      string   `json:"suffix"`
	Postcode    string   `json:"postcode"`
	City        string   `json:"city"`
	District    string   `json:"district"`
	Cemetery    string   `json:"cemetery"`
	GraveNumber string   `json:"grave_number"`
	Section     string   `json:"section"`
	LamppostID  string   `json:"lamppost_id"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Weight      float64  `json:"weight"`
}

type attachmentDocument struct {
	File string `json:"file"`
}

// signalDocument is the JSON accepted by `signals ingest`.
type signalDocument struct {
	SignalURL      string               `json:"signal_url"`
	SourceID       string               `json:"source_id"`
	SourceSignalID string               `json:"source_signal_id"`
	CreatedAt      *time.Time           `json:"created_at"`
	Urgency        *float64             `json:"urgency"`
	Description    string               `json:"description"`
	Meta           map[string]any       `json:"meta"`
	MetaExtended   map[string]any       `json:"meta_extended"`
	Reporter       *reporterDocument    `json:"reporter"`
	Subjects       []string             `json:"subjects"`
	Locations      []locationDocument   `json:"locations"`
	Attachments    []attachmentDocument `json:"attachments"`
}

func readSignalDocument(path string) (lifecycle.SignalInput, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return lifecycle.SignalInput{}, errors.New("signal file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return lifecycle.SignalInput{}, errs.Wrapf(err, "read signal file %q", path)
	}
	return parseSignalDocument(raw)
}

func parseSignalDocument(raw []byte) (lifecycle.SignalInput, error) {
	var doc signalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return lifecycle.SignalInput{}, errs.Wrap(err, "decode signal document")
	}

	input := lifecycle.SignalInput{
		SignalURL:      doc.SignalURL,
		SourceID:       doc.SourceID,
		SourceSignalID: doc.SourceSignalID,
		Urgency:        doc.Urgency,
		Description:    doc.Description,
		Meta:           doc.Meta,
		MetaExtended:   doc.MetaExtended,
		Subjects:       doc.Subjects,
		Attachments:    attachmentsFromPaths(filesOf(doc.Attachments)),
	}
	if doc.CreatedAt != nil {
		input.OriginalCreatedAt = doc.CreatedAt.UTC()
	}
	if doc.Reporter != nil {
		input.Reporter = &report.Reporter{
			FirstName: doc.Reporter.FirstName,
			LastName:  doc.Reporter.LastName,
			Name:      doc.Reporter.Name,
			Email:     doc.Reporter.Email,
			Phone:     doc.Reporter.Phone,
		}
	}
	for _, loc := range doc.Locations {
		input.Locations = append(input.Locations, loc.toLocation())
	}
	return input, nil
}

func parseLocationDocument(raw string) (*report.Location, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var doc locationDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errs.Wrap(err, "decode location")
	}
	loc := doc.toLocation()
	return &loc, nil
}

func (d locationDocument) toLocation() report.Location {
	return report.Location{
		Type:        report.LocationType(strings.TrimSpace(d.Type)),
		Street:      d.Street,
		HouseNumber: d.HouseNumber,
		HouseLetter: d.HouseLetter,
		Suffix:      d.Suffix,
		Postcode:    d.Postcode,
		City:        d.City,
		District:    d.District,
		Cemetery:    d.Cemetery,
		GraveNumber: d.GraveNumber,
		Section:     d.Section,
		LamppostID:  d.LamppostID,
		Lat:         d.Lat,
		Lon:         d.Lon,
		Weight:      d.Weight,
	}
}

func filesOf(docs []attachmentDocument) []string {
	files := make([]string, 0, len(docs))
	for _, doc := range docs {
		files = append(files, doc.File)
	}
	return files
}

func attachmentsFromPaths(paths []string) []report.Attachment {
	var out []report.Attachment
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		out = append(out, report.Attachment{File: strings.TrimSpace(path)})
	}
	return out
}

// parseAdditionalInfo decodes a JSON object flag; an empty flag is nil.
func parseAdditionalInfo(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errs.Wrap(err, "decode additional info")
	}
	return out, nil
}
