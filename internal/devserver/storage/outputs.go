package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fumikura/outfeed"
)

type OutputRepository struct {
	db *gorm.DB
}

func NewOutputRepository(db *gorm.DB) *OutputRepository {
	return &OutputRepository{db: db}
}

// Store persists a cleaned draft for owner and returns the created record.
func (r *OutputRepository) Store(ctx context.Context, ownerID string, d outfeed.Draft) (outfeed.Record, error) {
	content, err := json.Marshal(outfeed.OutputContent{
		Questions:  d.Questions,
		Difficulty: d.Difficulty,
	})
	if err != nil {
		return outfeed.Record{}, err
	}

	row := Output{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		ToolName:  d.ToolName,
		Content:   string(content),
		CreatedAt: time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return outfeed.Record{}, err
	}

	return r.toRecord(row)
}

// Page returns one page of the owner's records, newest first, plus the
// total row count for the filter.
func (r *OutputRepository) Page(ctx context.Context, ownerID string, page int, f outfeed.Filter, size int) ([]outfeed.Record, int64, error) {
	query := r.db.WithContext(ctx).Model(&Output{}).Where("owner_id = ?", ownerID)

	if f.Tool != "" {
		query = query.Where("tool_name ILIKE ?", "%"+f.Tool+"%")
	}
	if f.Date != "" {
		day, err := time.Parse("2006-01-02", f.Date)
		if err != nil {
			return nil, 0, outfeed.ValidationError{Field: "date", Message: "date must be YYYY-MM-DD"}
		}
		query = query.Where("created_at >= ? AND created_at < ?", day, day.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Output
	err := query.
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]outfeed.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := r.toRecord(row)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

func (r *OutputRepository) toRecord(row Output) (outfeed.Record, error) {
	var content outfeed.OutputContent
	if err := json.Unmarshal([]byte(row.Content), &content); err != nil {
		return outfeed.Record{}, err
	}
	rec := outfeed.Record{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		ToolName:  row.ToolName,
		Content:   content,
		CreatedAt: row.CreatedAt,
	}
	rec.Normalize()
	return rec, nil
}
