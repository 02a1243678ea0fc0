package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
)

// PostgresGateway implements Gateway on PostgreSQL.
type PostgresGateway struct {
	db     *sql.DB
	logger *logger.Logger
}

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// DefaultPostgresConfig returns sane pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		DSN:          "postgres://localhost/ocpp?sslmode=disable",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
		ConnLifetime: 30 * time.Minute,
	}
}

// NewPostgresGateway opens the pool and verifies connectivity.
func NewPostgresGateway(cfg *PostgresConfig, log *logger.Logger) (*PostgresGateway, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("Connected to PostgreSQL")
	return &PostgresGateway{db: db, logger: log}, nil
}

// Close releases the pool.
func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

// Ping probes the database.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// UpsertChargePoint inserts or refreshes a station row.
func (g *PostgresGateway) UpsertChargePoint(ctx context.Context, cp *ChargePoint) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO charge_points (
			id, vendor, model, serial_number, firmware_version,
			iccid, imsi, meter_type, meter_serial_number, is_online, last_seen
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			iccid = EXCLUDED.iccid,
			imsi = EXCLUDED.imsi,
			meter_type = EXCLUDED.meter_type,
			meter_serial_number = EXCLUDED.meter_serial_number,
			is_online = EXCLUDED.is_online,
			last_seen = EXCLUDED.last_seen`,
		cp.ID, cp.Vendor, cp.Model, cp.SerialNumber, cp.FirmwareVersion,
		cp.Iccid, cp.Imsi, cp.MeterType, cp.MeterSerialNumber, cp.IsOnline, cp.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert charge point %s: %w", cp.ID, err)
	}
	return nil
}

// SetChargePointOnline flips the online flag and refreshes last_seen.
func (g *PostgresGateway) SetChargePointOnline(ctx context.Context, chargePointID string, online bool, now time.Time) error {
	_, err := g.db.ExecContext(ctx,
		`UPDATE charge_points SET is_online = $2, last_seen = $3 WHERE id = $1`,
		chargePointID, online, now)
	if err != nil {
		return fmt.Errorf("failed to set charge point %s online=%v: %w", chargePointID, online, err)
	}
	return nil
}

// GetChargePoint reads one station row.
func (g *PostgresGateway) GetChargePoint(ctx context.Context, chargePointID string) (*ChargePoint, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, vendor, model, serial_number, firmware_version,
		       iccid, imsi, meter_type, meter_serial_number, is_online, last_seen
		FROM charge_points WHERE id = $1`, chargePointID)

	var cp ChargePoint
	err := row.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.SerialNumber, &cp.FirmwareVersion,
		&cp.Iccid, &cp.Imsi, &cp.MeterType, &cp.MeterSerialNumber, &cp.IsOnline, &cp.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge point %s: %w", chargePointID, err)
	}
	return &cp, nil
}

// ListChargePoints returns all station rows.
func (g *PostgresGateway) ListChargePoints(ctx context.Context) ([]*ChargePoint, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, vendor, model, serial_number, firmware_version,
		       iccid, imsi, meter_type, meter_serial_number, is_online, last_seen
		FROM charge_points ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list charge points: %w", err)
	}
	defer rows.Close()

	var out []*ChargePoint
	for rows.Next() {
		var cp ChargePoint
		if err := rows.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.SerialNumber, &cp.FirmwareVersion,
			&cp.Iccid, &cp.Imsi, &cp.MeterType, &cp.MeterSerialNumber, &cp.IsOnline, &cp.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan charge point: %w", err)
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// UpsertConnector inserts or refreshes a connector row.
func (g *PostgresGateway) UpsertConnector(ctx context.Context, c *Connector) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO connectors (
			charge_point_id, connector_id, type, status, error_code,
			vendor_error_code, info, current_transaction_id, last_updated,
			input_voltage, output_voltage, input_current, demand_current,
			charging_energy, output_energy, gun_temperature, state_of_charge
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (charge_point_id, connector_id) DO UPDATE SET
			type = COALESCE(NULLIF(EXCLUDED.type, ''), connectors.type),
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			vendor_error_code = EXCLUDED.vendor_error_code,
			info = EXCLUDED.info,
			current_transaction_id = EXCLUDED.current_transaction_id,
			last_updated = EXCLUDED.last_updated,
			input_voltage = COALESCE(EXCLUDED.input_voltage, connectors.input_voltage),
			output_voltage = COALESCE(EXCLUDED.output_voltage, connectors.output_voltage),
			input_current = COALESCE(EXCLUDED.input_current, connectors.input_current),
			demand_current = COALESCE(EXCLUDED.demand_current, connectors.demand_current),
			charging_energy = COALESCE(EXCLUDED.charging_energy, connectors.charging_energy),
			output_energy = COALESCE(EXCLUDED.output_energy, connectors.output_energy),
			gun_temperature = COALESCE(EXCLUDED.gun_temperature, connectors.gun_temperature),
			state_of_charge = COALESCE(EXCLUDED.state_of_charge, connectors.state_of_charge)`,
		c.ChargePointID, c.ConnectorID, c.Type, c.Status, c.ErrorCode,
		c.VendorErrorCode, c.Info, c.CurrentTransactionID, c.LastUpdated,
		c.Telemetry.InputVoltage, c.Telemetry.OutputVoltage, c.Telemetry.InputCurrent,
		c.Telemetry.DemandCurrent, c.Telemetry.ChargingEnergy, c.Telemetry.OutputEnergy,
		c.Telemetry.GunTemperature, c.Telemetry.StateOfCharge)
	if err != nil {
		return fmt.Errorf("failed to upsert connector %s/%d: %w", c.ChargePointID, c.ConnectorID, err)
	}
	return nil
}

// SetConnectorStatus applies a status update, creating the row if needed.
func (g *PostgresGateway) SetConnectorStatus(ctx context.Context, chargePointID string, connectorID int, update ConnectorStatusUpdate) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO connectors (
			charge_point_id, connector_id, status, error_code,
			vendor_error_code, info, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (charge_point_id, connector_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			vendor_error_code = EXCLUDED.vendor_error_code,
			info = EXCLUDED.info,
			last_updated = NOW()`,
		chargePointID, connectorID, update.Status, update.ErrorCode,
		update.VendorErrorCode, update.Info)
	if err != nil {
		return fmt.Errorf("failed to set connector status %s/%d: %w", chargePointID, connectorID, err)
	}
	return nil
}

// ListConnectors returns all connector rows of a station.
func (g *PostgresGateway) ListConnectors(ctx context.Context, chargePointID string) ([]*Connector, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT charge_point_id, connector_id, COALESCE(type, ''), status,
		       error_code, vendor_error_code, info, current_transaction_id, last_updated,
		       input_voltage, output_voltage, input_current, demand_current,
		       charging_energy, output_energy, gun_temperature, state_of_charge
		FROM connectors WHERE charge_point_id = $1 ORDER BY connector_id`, chargePointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors for %s: %w", chargePointID, err)
	}
	defer rows.Close()

	var out []*Connector
	for rows.Next() {
		var c Connector
		if err := rows.Scan(&c.ChargePointID, &c.ConnectorID, &c.Type, &c.Status,
			&c.ErrorCode, &c.VendorErrorCode, &c.Info, &c.CurrentTransactionID, &c.LastUpdated,
			&c.Telemetry.InputVoltage, &c.Telemetry.OutputVoltage, &c.Telemetry.InputCurrent,
			&c.Telemetry.DemandCurrent, &c.Telemetry.ChargingEnergy, &c.Telemetry.OutputEnergy,
			&c.Telemetry.GunTemperature, &c.Telemetry.StateOfCharge); err != nil {
			return nil, fmt.Errorf("failed to scan connector: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CreateTransaction inserts a new transaction row.
func (g *PostgresGateway) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	row := g.db.QueryRowContext(ctx, `
		INSERT INTO transactions (
			transaction_id, charge_point_id, connector_id, id_tag,
			meter_start, start_timestamp, start_soc
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		tx.TransactionID, tx.ChargePointID, tx.ConnectorID, tx.IdTag,
		tx.MeterStart, tx.StartTime, tx.StartSoC)

	if err := row.Scan(&tx.ID); err != nil {
		return nil, fmt.Errorf("failed to create transaction %d: %w", tx.TransactionID, err)
	}
	return tx, nil
}

// StopTransaction closes a transaction row.
func (g *PostgresGateway) StopTransaction(ctx context.Context, transactionID int, meterStop float64, ts time.Time, reason StopReason, stopSoC *float64) error {
	res, err := g.db.ExecContext(ctx, `
		UPDATE transactions SET
			meter_stop = $2, stop_timestamp = $3, stop_reason = $4,
			stop_soc = COALESCE($5, stop_soc)
		WHERE transaction_id = $1`,
		transactionID, meterStop, ts, reason, stopSoC)
	if err != nil {
		return fmt.Errorf("failed to stop transaction %d: %w", transactionID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// WriteStartSoC sets start_soc only when it is still null.
func (g *PostgresGateway) WriteStartSoC(ctx context.Context, transactionID int, soc float64) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE transactions SET start_soc = $2
		WHERE transaction_id = $1 AND start_soc IS NULL`,
		transactionID, soc)
	if err != nil {
		return fmt.Errorf("failed to write start SoC for transaction %d: %w", transactionID, err)
	}
	return nil
}

// GetTransaction reads one transaction by its OCPP id.
func (g *PostgresGateway) GetTransaction(ctx context.Context, transactionID int) (*Transaction, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, charge_point_id, connector_id, id_tag,
		       meter_start, meter_stop, start_timestamp, stop_timestamp,
		       stop_reason, start_soc, stop_soc
		FROM transactions WHERE transaction_id = $1`, transactionID)

	var tx Transaction
	err := row.Scan(&tx.ID, &tx.TransactionID, &tx.ChargePointID, &tx.ConnectorID, &tx.IdTag,
		&tx.MeterStart, &tx.MeterStop, &tx.StartTime, &tx.StopTime,
		&tx.StopReason, &tx.StartSoC, &tx.StopSoC)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", transactionID, err)
	}
	return &tx, nil
}

// ListTransactions returns the most recent transactions of a station, or of
// all stations when chargePointID is empty.
func (g *PostgresGateway) ListTransactions(ctx context.Context, chargePointID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, transaction_id, charge_point_id, connector_id, id_tag,
		       meter_start, meter_stop, start_timestamp, stop_timestamp,
		       stop_reason, start_soc, stop_soc
		FROM transactions
		WHERE ($1 = '' OR charge_point_id = $1)
		ORDER BY start_timestamp DESC LIMIT $2`, chargePointID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.TransactionID, &tx.ChargePointID, &tx.ConnectorID, &tx.IdTag,
			&tx.MeterStart, &tx.MeterStop, &tx.StartTime, &tx.StopTime,
			&tx.StopReason, &tx.StartSoC, &tx.StopSoC); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

// SaveMeterValues bulk-inserts sample rows in one transaction.
func (g *PostgresGateway) SaveMeterValues(ctx context.Context, batch []MeterValueRecord) error {
	if len(batch) == 0 {
		return nil
	}
	dbTx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin meter value batch: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO meter_values (
			charge_point_id, connector_id, transaction_id, ts,
			value, measurand, phase, location, unit, context
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`)
	if err != nil {
		return fmt.Errorf("failed to prepare meter value insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.ChargePointID, r.ConnectorID, r.TransactionID,
			r.Timestamp, r.Value, r.Measurand, r.Phase, r.Location, r.Unit, r.Context); err != nil {
			return fmt.Errorf("failed to insert meter value: %w", err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit meter value batch: %w", err)
	}
	return nil
}

// ValidateIdTag reads the verdict for an idTag. Unknown tags are Invalid.
func (g *PostgresGateway) ValidateIdTag(ctx context.Context, idTag string) (*IdTagVerdict, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT status, expiry_date FROM id_tags WHERE id_tag = $1`, idTag)

	var status string
	var expiry sql.NullTime
	err := row.Scan(&status, &expiry)
	if err == sql.ErrNoRows {
		return &IdTagVerdict{Status: ocpp16.AuthorizationStatusInvalid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate id tag: %w", err)
	}

	verdict := &IdTagVerdict{Status: ocpp16.AuthorizationStatus(status)}
	if expiry.Valid {
		t := expiry.Time
		verdict.ExpiryDate = &t
	}
	return verdict, nil
}

// CreateAlarm inserts a fault record.
func (g *PostgresGateway) CreateAlarm(ctx context.Context, a *Alarm) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO alarms (
			charge_point_id, connector_id, alarm_type, severity, message, resolved, created_at
		) VALUES ($1,$2,$3,$4,$5,false,$6)`,
		a.ChargePointID, a.ConnectorID, a.AlarmType, a.Severity, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alarm for %s: %w", a.ChargePointID, err)
	}
	return nil
}

// ResolveAlarms closes all open alarms on one connector.
func (g *PostgresGateway) ResolveAlarms(ctx context.Context, chargePointID string, connectorID int, resolver string) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE alarms SET resolved = true, resolved_at = NOW(), resolved_by = $3
		WHERE charge_point_id = $1 AND connector_id = $2 AND resolved = false`,
		chargePointID, connectorID, resolver)
	if err != nil {
		return fmt.Errorf("failed to resolve alarms for %s/%d: %w", chargePointID, connectorID, err)
	}
	return nil
}
