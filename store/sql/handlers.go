package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func idempotencyKeyHandlers() repository.ModelHandlers[*idempotencyKeyRecord] {
	return repository.ModelHandlers[*idempotencyKeyRecord]{
		NewRecord: func() *idempotencyKeyRecord {
			return &idempotencyKeyRecord{}
		},
		GetID: func(record *idempotencyKeyRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *idempotencyKeyRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *idempotencyKeyRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func dedupRecordHandlers() repository.ModelHandlers[*dedupRecordRow] {
	return repository.ModelHandlers[*dedupRecordRow]{
		NewRecord: func() *dedupRecordRow {
			return &dedupRecordRow{}
		},
		GetID: func(record *dedupRecordRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *dedupRecordRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *dedupRecordRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func entitySequenceHandlers() repository.ModelHandlers[*entitySequenceRecord] {
	return repository.ModelHandlers[*entitySequenceRecord]{
		NewRecord: func() *entitySequenceRecord {
			return &entitySequenceRecord{}
		},
		GetID: func(record *entitySequenceRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *entitySequenceRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *entitySequenceRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func auditRecordHandlers() repository.ModelHandlers[*auditRecordRow] {
	return repository.ModelHandlers[*auditRecordRow]{
		NewRecord: func() *auditRecordRow {
			return &auditRecordRow{}
		},
		GetID: func(record *auditRecordRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *auditRecordRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *auditRecordRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
