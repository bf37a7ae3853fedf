package postgres

// Tables used:
//
//	messages   (id bigint pk, status text, external_error text, updated_at timestamptz)
//	assistants (id bigserial pk, name text unique, enabled boolean, settings jsonb)

const queryFindMessage = `
SELECT id, status, COALESCE(external_error, '')
FROM messages
WHERE id = $1
`

const queryUpdateMessageStatus = `
UPDATE messages
SET status = $1, external_error = $2, updated_at = now()
WHERE id = $3
`

const queryInsertAssistant = `
INSERT INTO assistants (name, enabled, settings)
VALUES ($1, true, '{}'::jsonb)
ON CONFLICT (name) DO NOTHING
`

const querySelectAssistant = `
SELECT id, name, enabled, settings->>'outgoing_url'
FROM assistants
WHERE name = $1
`
