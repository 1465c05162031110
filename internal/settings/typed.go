package settings

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Bind decodes the merged settings of category into dst, a pointer to a struct
// with json tags, and validates it with its validate tags.
func (s *Store) Bind(ctx context.Context, category string, dst any) error {
	values, err := s.GetSettings(ctx, category)
	if err != nil {
		return err
	}

	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}

	if err = json.Unmarshal(data, dst); err != nil {
		return errors.Wrapf(err, "failed to decode settings of category %s", category)
	}

	return Validate(dst)
}

// SaveStruct validates src and saves its json representation as the settings of category.
func (s *Store) SaveStruct(ctx context.Context, category string, src any) error {
	if err := Validate(src); err != nil {
		return err
	}

	values, err := Normalize(src)
	if err != nil {
		return err
	}

	return s.SaveSettings(ctx, category, values)
}
