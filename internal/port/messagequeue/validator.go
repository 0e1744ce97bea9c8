package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Outbound per-task subjects and unknown
// subjects only need to be valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectTaskInterrupt:
		var p TaskInterruptPayload
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || strings.TrimSpace(p.Message) == "" {
			return fmt.Errorf("schema validation failed for %s: task_id and message are required", subject)
		}
	case subject == SubjectTaskCancel:
		var p TaskCancelPayload
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" {
			return fmt.Errorf("schema validation failed for %s: task_id is required", subject)
		}
	case subject == SubjectTaskStart:
		var p TaskStartPayload
		if err := decodeStrict(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if strings.TrimSpace(p.Prompt) == "" && p.ResumeFrom == "" {
			return fmt.Errorf("schema validation failed for %s: prompt or resume_from is required", subject)
		}
	}
	return nil
}

func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
