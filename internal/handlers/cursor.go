package handlers

import (
	"encoding/base64"
	"strconv"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

// Opaque page cursor: base64url of the log position of the last returned transaction
func encodeCursor(c *models.PageCursor) string {
	if c == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(strconv.AppendInt(nil, c.Seq, 10))
}

func decodeCursor(value string) (*models.PageCursor, error) {
	if value == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, apperrors.ErrInvalidPageCursor
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq <= 0 {
		return nil, apperrors.ErrInvalidPageCursor
	}

	return &models.PageCursor{Seq: seq}, nil
}
