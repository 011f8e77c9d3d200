package storage

import (
	_ "embed"
)

const (
	insertFlightLogSQL = `
INSERT INTO flight_logs (id,
                         title,
                         pilot,
                         serial_number,
                         log_identifier,
                         drone_model,
                         duration_seconds,
                         file_path,
                         comment,
                         takeoff_lat,
                         takeoff_lon,
                         flight_date,
                         flight_modes,
                         created_at,
                         updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	flightLogColumns = `
    id,
    title,
    pilot,
    serial_number,
    log_identifier,
    drone_model,
    duration_seconds,
    file_path,
    comment,
    takeoff_lat,
    takeoff_lon,
    flight_date,
    flight_modes,
    created_at,
    updated_at`

	selectFlightLogSQL = `
SELECT` + flightLogColumns + `
FROM flight_logs
WHERE
    id = ?`

	deleteFlightLogSQL = `
DELETE
FROM flight_logs
WHERE
    id = ?`

	selectTagSQL = `
SELECT
    id,
    name
FROM tags
WHERE
    name = ?`

	insertTagSQL = `
INSERT INTO tags (name)
VALUES (?)`

	insertFlightLogTagSQL = `
INSERT OR IGNORE INTO flight_log_tags (flight_log_id, tag_id)
VALUES (?, ?)`

	deleteFlightLogTagsSQL = `
DELETE
FROM flight_log_tags
WHERE
    flight_log_id = ?`

	selectLogTagsSQL = `
SELECT
    t.id,
    t.name
FROM tags t
         JOIN flight_log_tags flt ON flt.tag_id = t.id
WHERE
    flt.flight_log_id = ?
ORDER BY t.name`

	selectStatsSQL = `
SELECT
    COUNT(*),
    COALESCE(SUM(duration_seconds), 0)
FROM flight_logs`

	selectHoursByModelSQL = `
SELECT
    drone_model,
    COALESCE(SUM(duration_seconds), 0)
FROM flight_logs
GROUP BY drone_model`

	selectPilotsSQL = `
SELECT DISTINCT pilot
FROM flight_logs
WHERE
    pilot <> ''
ORDER BY pilot`

	selectDuplicateSQL = `
SELECT
    id
FROM flight_logs
WHERE
    serial_number = ?
    AND log_identifier = ?
LIMIT 1`

	insertAttachmentSQL = `
INSERT INTO attachments (id,
                         flight_log_id,
                         filename,
                         file_path,
                         file_size,
                         content_type,
                         created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	attachmentColumns = `
    id,
    flight_log_id,
    filename,
    file_path,
    file_size,
    content_type,
    created_at`

	selectAttachmentsSQL = `
SELECT` + attachmentColumns + `
FROM attachments
WHERE
    flight_log_id = ?
ORDER BY created_at, id`

	selectAttachmentSQL = `
SELECT` + attachmentColumns + `
FROM attachments
WHERE
    id = ?
    AND flight_log_id = ?`

	deleteAttachmentSQL = `
DELETE
FROM attachments
WHERE
    id = ?
    AND flight_log_id = ?`
)

//go:embed schema.sql
var schemaSQL string
