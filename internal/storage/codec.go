package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"progenitor/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeIndividual(individual model.Individual) ([]byte, error) {
	return json.Marshal(individual)
}

func DecodeIndividual(data []byte) (model.Individual, error) {
	var individual model.Individual
	if err := json.Unmarshal(data, &individual); err != nil {
		return model.Individual{}, err
	}
	if err := checkVersion(individual.VersionedRecord); err != nil {
		return model.Individual{}, err
	}
	return individual, nil
}

func EncodeConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		return nil, nil
	}
	return json.Marshal(config)
}

func DecodeConfig(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config, nil
}

func checkVersion(record model.VersionedRecord) error {
	if record.SchemaVersion != CurrentSchemaVersion || record.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, record.SchemaVersion, record.CodecVersion)
	}
	return nil
}

// Stamp fills in the current record versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}
