package pipeline

import (
	"strings"
)

// DefaultArchiveLinkBase is the catalogue URL prefix used for /ArchiveLink.
const DefaultArchiveLinkBase = "https://archives.dainst.org/index.php"

// ArchivalDate is one dated event of an archival record.
type ArchivalDate struct {
	Type      string  `json:"type"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
}

// ArchivalMetadata is the catalogue record attached to an archival target.
// Pointer fields distinguish an absent value from an empty one.
type ArchivalMetadata struct {
	Title                   *string        `json:"title,omitempty"`
	AtomID                  *string        `json:"atom_id,omitempty"`
	Authors                 []string       `json:"authors,omitempty"`
	ScopeAndContent         *string        `json:"scope_and_content,omitempty"`
	Repository              *string        `json:"repository,omitempty"`
	RepositoryInheritedFrom *string        `json:"repository_inherited_from,omitempty"`
	ReferenceCode           *string        `json:"reference_code,omitempty"`
	Creators                []string       `json:"creators,omitempty"`
	ExtentAndMedium         *string        `json:"extent_and_medium,omitempty"`
	LevelOfDescription      *string        `json:"level_of_description,omitempty"`
	Notes                   []string       `json:"notes,omitempty"`
	Dates                   []ArchivalDate `json:"dates,omitempty"`
	Copyright               string         `json:"copyright,omitempty"`
}

// PDFFields are the document info entries written into the merged PDF.
type PDFFields struct {
	Title       string `json:"/Title,omitempty"`
	ArchiveLink string `json:"/ArchiveLink,omitempty"`
	Author      string `json:"/Author,omitempty"`
	Subject     string `json:"/Subject"`
}

var levelOfDescriptionLabels = map[string]string{
	"Fonds": "Bestand",
	"File":  "Akte",
	"Item":  "Objekt",
}

var dateTypeLabels = map[string]string{
	"Creation":     "Datum",
	"Accumulation": "Laufzeit",
}

// PDFMetadata renders record using DefaultArchiveLinkBase.
func PDFMetadata(record ArchivalMetadata) PDFFields {
	return PDFMetadataWithBase(record, DefaultArchiveLinkBase)
}

// PDFMetadataWithBase renders record into PDF info fields. Subject sections
// appear in a fixed order and a section whose source field is absent is
// omitted entirely.
func PDFMetadataWithBase(record ArchivalMetadata, archiveLinkBase string) PDFFields {
	var fields PDFFields
	if record.Title != nil {
		fields.Title = *record.Title
	}
	if record.AtomID != nil {
		fields.ArchiveLink = strings.TrimRight(archiveLinkBase, "/") + "/" + *record.AtomID
	}
	if len(record.Authors) > 0 {
		fields.Author = strings.Join(record.Authors, ", ")
	}

	var subject strings.Builder
	if record.ScopeAndContent != nil {
		subject.WriteString("Eingrenzung und Inhalt:\n" + *record.ScopeAndContent + "\n\n")
	}

	var repository strings.Builder
	if record.Repository != nil {
		repository.WriteString("Archiv:\n" + *record.Repository)
	}
	if record.RepositoryInheritedFrom != nil {
		repository.WriteString("\nBestand: " + *record.RepositoryInheritedFrom)
	}
	if repository.Len() > 0 {
		subject.WriteString(repository.String() + "\n\n")
	}

	if record.ReferenceCode != nil {
		subject.WriteString("Signatur:\n" + *record.ReferenceCode + "\n\n")
	}

	if len(record.Creators) > 0 {
		subject.WriteString("Bestandsbildner:\n")
		for _, creator := range record.Creators {
			subject.WriteString(creator + "\n")
		}
		subject.WriteString("\n")
	}

	if record.ExtentAndMedium != nil {
		subject.WriteString("Umfang und Medium:\n" + *record.ExtentAndMedium + "\n\n")
	}

	if record.LevelOfDescription != nil {
		level := *record.LevelOfDescription
		if translated, ok := levelOfDescriptionLabels[level]; ok {
			level = translated
		}
		subject.WriteString("Erschließungsstufe: " + level + "\n\n")
	}

	if len(record.Notes) > 0 {
		for _, note := range record.Notes {
			subject.WriteString(note + "\n")
		}
		subject.WriteString("\n")
	}

	for idx, date := range record.Dates {
		if idx > 0 {
			subject.WriteString(" | ")
		}
		if label, ok := dateTypeLabels[date.Type]; ok {
			subject.WriteString(label + ": ")
		} else {
			subject.WriteString("Datum (" + date.Type + "): ")
		}
		if date.StartDate != nil && date.EndDate != nil {
			if *date.StartDate == *date.EndDate {
				subject.WriteString(*date.StartDate)
			} else {
				subject.WriteString(*date.StartDate + " - " + *date.EndDate)
			}
		}
		subject.WriteString("\n")
	}

	if record.Copyright != "" {
		subject.WriteString("\n" + record.Copyright)
	}

	fields.Subject = subject.String()
	return fields
}
