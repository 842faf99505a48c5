package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const nodeColumns = "id, type, owner, parent_id, child_ids, parameters, label, description, state, created_at, updated_at, errors"

func scanNode(scanner interface{ Scan(dest ...any) error }) (*Node, error) {
	var (
		id          string
		nodeType    string
		owner       string
		parentID    sql.NullString
		childIDs    sql.NullString
		parameters  sql.NullString
		label       sql.NullString
		description sql.NullString
		state       string
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		errorsRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&nodeType,
		&owner,
		&parentID,
		&childIDs,
		&parameters,
		&label,
		&description,
		&state,
		&createdRaw,
		&updatedRaw,
		&errorsRaw,
	); err != nil {
		return nil, err
	}

	node := &Node{
		ID:          id,
		Type:        nodeType,
		User:        owner,
		ParentID:    parentID.String,
		Label:       label.String,
		Description: description.String,
		State:       State(state),
		ChildIDs:    []string{},
		Errors:      []NodeError{},
	}
	if parameters.Valid && parameters.String != "" {
		node.Parameters = json.RawMessage(parameters.String)
	}
	if childIDs.Valid && childIDs.String != "" {
		if err := json.Unmarshal([]byte(childIDs.String), &node.ChildIDs); err != nil {
			return nil, fmt.Errorf("decode child ids for %s: %w", id, err)
		}
	}
	if errorsRaw.Valid && errorsRaw.String != "" {
		if err := json.Unmarshal([]byte(errorsRaw.String), &node.Errors); err != nil {
			return nil, fmt.Errorf("decode errors for %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		node.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		node.UpdatedAt = updated
	}
	return node, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
