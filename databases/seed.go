package databases

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/linesmerrill/camp-cad-api/models"
)

//go:embed seed/reference.yaml
var defaultReferenceData []byte

// ReferenceData is the call types, questionnaires and units a fresh install starts with
type ReferenceData struct {
	CallTypes []models.CallType         `yaml:"call_types"`
	Questions []models.ProtocolQuestion `yaml:"protocol_questions"`
	Units     []SeedUnit                `yaml:"units"`
}

// SeedUnit is the subset of a unit the seed file describes
type SeedUnit struct {
	ID         string          `yaml:"id"`
	UnitNumber string          `yaml:"unit_number"`
	Name       string          `yaml:"unit_name"`
	Type       models.UnitType `yaml:"unit_type"`
	GroupID    string          `yaml:"group_id"`
}

// SeedResult counts what SeedReferenceData inserted
type SeedResult struct {
	CallTypes int
	Questions int
	Units     int
}

// LoadReferenceData parses a reference data document
func LoadReferenceData(b []byte) (*ReferenceData, error) {
	data := &ReferenceData{}
	if err := yaml.Unmarshal(b, data); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	return data, nil
}

// DefaultReferenceData returns the embedded camp reference data
func DefaultReferenceData() (*ReferenceData, error) {
	return LoadReferenceData(defaultReferenceData)
}

// SeedReferenceData inserts every record of data that is not stored yet.
// Questions are only seeded for call types that have none.
func SeedReferenceData(ctx context.Context, store *Store, data *ReferenceData) (SeedResult, error) {
	var res SeedResult
	now := time.Now().UTC()

	for i := range data.CallTypes {
		ct := data.CallTypes[i]
		_, err := store.CallTypes.FindByID(ctx, ct.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return res, err
		}
		ct.CreatedAt = now
		if err := store.CallTypes.InsertOne(ctx, &ct); err != nil {
			return res, fmt.Errorf("seed call type %s: %w", ct.ID, err)
		}
		res.CallTypes++
	}

	byType := map[string][]models.ProtocolQuestion{}
	for _, q := range data.Questions {
		byType[q.CallTypeID] = append(byType[q.CallTypeID], q)
	}
	for callTypeID, questions := range byType {
		existing, err := store.Questions.FindByCallType(ctx, callTypeID)
		if err != nil {
			return res, err
		}
		if len(existing) > 0 {
			continue
		}
		for i := range questions {
			if err := store.Questions.InsertOne(ctx, &questions[i]); err != nil {
				return res, fmt.Errorf("seed question %s: %w", questions[i].ID, err)
			}
			res.Questions++
		}
	}

	for _, su := range data.Units {
		_, err := store.Units.FindByID(ctx, su.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return res, err
		}
		unit := &models.Unit{
			ID:               su.ID,
			UnitNumber:       su.UnitNumber,
			Name:             su.Name,
			Type:             su.Type,
			GroupID:          su.GroupID,
			Status:           models.UnitStatusAvailable,
			IsActive:         true,
			LastStatusUpdate: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := store.Units.InsertOne(ctx, unit); err != nil {
			return res, fmt.Errorf("seed unit %s: %w", su.ID, err)
		}
		res.Units++
	}

	zap.S().Infow("reference data seeded",
		"callTypes", res.CallTypes,
		"questions", res.Questions,
		"units", res.Units,
	)
	return res, nil
}
