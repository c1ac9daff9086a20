package store

// Raw SQL kept as named package constants rather than inlined at call
// sites. gorm's struct mapping cannot express COALESCE-merge upserts or
// earthdistance geometry, so everything past trivial CRUD lives here.

const upsertSourceSQL = `
INSERT INTO sources (observation_type, station_code, wmo_station_id, station_name, lat, lon, height)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (observation_type, station_code, lat, lon, height)
DO UPDATE SET
	station_name = EXCLUDED.station_name,
	wmo_station_id = EXCLUDED.wmo_station_id
RETURNING id
`

const upsertWeatherRecordSQL = `
INSERT INTO weather (
	source_id, timestamp, temperature, wind_direction, wind_speed,
	precipitation, sunshine, pressure_msl
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source_id, timestamp)
DO UPDATE SET
	temperature = COALESCE(EXCLUDED.temperature, weather.temperature),
	wind_direction = COALESCE(EXCLUDED.wind_direction, weather.wind_direction),
	wind_speed = COALESCE(EXCLUDED.wind_speed, weather.wind_speed),
	precipitation = COALESCE(EXCLUDED.precipitation, weather.precipitation),
	sunshine = COALESCE(EXCLUDED.sunshine, weather.sunshine),
	pressure_msl = COALESCE(EXCLUDED.pressure_msl, weather.pressure_msl)
`

const upsertLedgerSQL = `
INSERT INTO parsed_files (url, last_modified, file_size, parsed_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (url)
DO UPDATE SET
	last_modified = EXCLUDED.last_modified,
	file_size = EXCLUDED.file_size,
	parsed_at = EXCLUDED.parsed_at
`

const ledgerFingerprintSQL = `
SELECT url, last_modified, file_size FROM parsed_files
`

const lookupForecastStationSQL = `
SELECT lat, lon, height, station_name
FROM sources
WHERE observation_type = 'forecast' AND station_code = $1
ORDER BY id DESC
LIMIT 1
`

// observationTypeRankSQL orders rows by how fresh and authoritative each
// observation type is: measured beats modeled, recent beats archived.
const observationTypeRankSQL = `
	CASE observation_type
		WHEN 'current' THEN 0
		WHEN 'recent' THEN 1
		WHEN 'historical' THEN 2
		WHEN 'forecast' THEN 3
		ELSE 4
	END
`

// sourcesByGeoSQL ranks candidate sources within max_dist meters of
// (lat, lon) using the earthdistance/cube extensions' earth_box index,
// ordered by observation type preference and then by distance.
const sourcesByGeoSQL = `
SELECT id, observation_type, station_code, wmo_station_id, station_name, lat, lon, height,
	earth_distance(ll_to_earth(lat, lon), ll_to_earth($1, $2)) AS distance_m
FROM sources
WHERE earth_box(ll_to_earth($1, $2), $3) @> ll_to_earth(lat, lon)
	AND earth_distance(ll_to_earth(lat, lon), ll_to_earth($1, $2)) <= $3
ORDER BY` + observationTypeRankSQL + `,
	distance_m
`

const sourcesByGeoIgnoreTypeSQL = `
SELECT id, observation_type, station_code, wmo_station_id, station_name, lat, lon, height,
	earth_distance(ll_to_earth(lat, lon), ll_to_earth($1, $2)) AS distance_m
FROM sources
WHERE earth_box(ll_to_earth($1, $2), $3) @> ll_to_earth(lat, lon)
	AND earth_distance(ll_to_earth(lat, lon), ll_to_earth($1, $2)) <= $3
ORDER BY distance_m
`

const sourceByIDSQL = `
SELECT id, observation_type, station_code, wmo_station_id, station_name, lat, lon, height
FROM sources WHERE id = $1
`

const sourcesByStationCodeSQL = `
SELECT id, observation_type, station_code, wmo_station_id, station_name, lat, lon, height
FROM sources WHERE station_code = $1
ORDER BY` + observationTypeRankSQL + `
`

const sourcesByWMOIDSQL = `
SELECT id, observation_type, station_code, wmo_station_id, station_name, lat, lon, height
FROM sources WHERE wmo_station_id = $1
ORDER BY` + observationTypeRankSQL + `
`

// weatherByRankSQL picks, for each timestamp in the queried interval, the
// row belonging to the earliest-listed source ID. Candidate IDs arrive
// already sorted by preference, so array_position doubles as the rank.
const weatherByRankSQL = `
SELECT DISTINCT ON (timestamp)
	source_id, timestamp, temperature, wind_direction, wind_speed,
	precipitation, sunshine, pressure_msl
FROM weather
WHERE source_id = ANY($1) AND timestamp BETWEEN $2 AND $3
ORDER BY timestamp, array_position($1::bigint[], source_id)
`

// weatherFallbackSQLTemplate restricts the same candidate set to rows where
// every one of the caller-supplied fields is non-null; the single extra
// query that backs fallback fill.
const weatherFallbackSQLTemplate = `
SELECT DISTINCT ON (timestamp)
	source_id, timestamp, temperature, wind_direction, wind_speed,
	precipitation, sunshine, pressure_msl
FROM weather
WHERE source_id = ANY($1) AND timestamp BETWEEN $2 AND $3
	AND (%s)
ORDER BY timestamp, array_position($1::bigint[], source_id)
`

// cleanWeatherSQL prunes stale forecast and current rows. Recent and
// historical observations are kept indefinitely; only model output and
// last-hour reports age out.
const cleanWeatherSQL = `
DELETE FROM weather
WHERE timestamp < $1
	AND source_id IN (
		SELECT id FROM sources WHERE observation_type IN ('forecast', 'current')
	)
`
