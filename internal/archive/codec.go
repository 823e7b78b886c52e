package archive

import (
	"encoding/json"
	"errors"

	"harmonia/internal/score"
	"harmonia/internal/toggle"
	"harmonia/internal/variant"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func CurrentVersion() VersionedRecord {
	return VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func EncodeRun(run RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

func EncodeScoreHistory(entries []score.Entry) ([]byte, error) {
	return json.Marshal(entries)
}

func DecodeScoreHistory(data []byte) ([]score.Entry, error) {
	var entries []score.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func EncodeFlagAudit(events []toggle.Event) ([]byte, error) {
	return json.Marshal(events)
}

func DecodeFlagAudit(data []byte) ([]toggle.Event, error) {
	var events []toggle.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func EncodeLineage(agents []variant.Agent) ([]byte, error) {
	return json.Marshal(agents)
}

func DecodeLineage(data []byte) ([]variant.Agent, error) {
	var agents []variant.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
