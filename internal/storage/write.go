package storage

import (
	"github.com/mesh-intelligence/strata/internal/driver"
	"github.com/mesh-intelligence/strata/internal/jsondoc"
	"github.com/mesh-intelligence/strata/internal/sqlgen"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Insert writes a payload into the named schema's table. Rows carrying
// a present, valid primary key route to the UPSERT form; rows without
// one route to INSERT with a synthesized id. Returns affected rows.
func (s *Storage) Insert(name string, payload []byte, trackInfo string) (int64, error) {
	sc, rows, err := s.resolve(name, payload)
	if err != nil {
		return 0, err
	}

	var affected int64
	var op types.Op
	err = s.withWrite(func(conn driver.Conn) error {
		n, o, err := s.insertRows(conn, sc, rows, trackInfo)
		affected, op = n, o
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notifyHook(name, op)
	return affected, nil
}

// InsertWith runs the insert pipeline on the caller's connection,
// joining its transaction. No commit and no notification happen here;
// the caller owns both.
func (s *Storage) InsertWith(conn driver.Conn, sc *types.Schema, payload []byte, trackInfo string) (int64, error) {
	rows, err := payloadRows(payload)
	if err != nil {
		return 0, err
	}
	n, _, err := s.insertRows(conn, sc, rows, trackInfo)
	return n, err
}

// insertRows prepares the INSERT and UPSERT forms once from the sample
// row and reuses both statements across the payload.
func (s *Storage) insertRows(conn driver.Conn, sc *types.Schema, rows []*jsondoc.Object, trackInfo string) (int64, types.Op, error) {
	sample := rows[0]

	insStmt, err := sqlgen.Insert(sc, jsondoc.Value(sample), s.dialect)
	if err != nil {
		return 0, opNone, err
	}
	ins, err := conn.Prepare(insStmt.SQL, insStmt.ExpectedParams)
	if err != nil {
		return 0, opNone, errStep("prepare insert", err)
	}
	defer ins.Close()

	// A schema without a PK has no upsert form; every row inserts.
	var ups driver.Statement
	var upsStmt sqlgen.Statement
	pk, hasPK := sc.PK()
	if hasPK {
		upsStmt, err = sqlgen.Upsert(sc, jsondoc.Value(sample), s.dialect)
		if err != nil {
			return 0, opNone, err
		}
		ups, err = conn.Prepare(upsStmt.SQL, upsStmt.ExpectedParams)
		if err != nil {
			return 0, opNone, errStep("prepare upsert", err)
		}
		defer ups.Close()
	}

	var affected int64
	var inserts, upserts int
	for _, row := range rows {
		usedUpsert := false
		if hasPK {
			if v, ok := row.Get(pk.Name); ok && pkValid(v, pk.Type) {
				usedUpsert = true
			}
		}

		var n int64
		if usedUpsert {
			if err := s.bindRow(ups, upsStmt.Bind, row, nil); err != nil {
				return affected, opNone, err
			}
			n, err = ups.Exec()
			upserts++
		} else {
			var id jsondoc.Value
			if hasPK {
				id, err = s.ids.Next(pk, sc.Name, conn)
				if err != nil {
					return affected, opNone, err
				}
			}
			if err := s.bindRow(ins, insStmt.Bind, row, id); err != nil {
				return affected, opNone, err
			}
			n, err = ins.Exec()
			inserts++
		}
		if err != nil {
			return affected, opNone, err
		}
		affected += n

		if trackInfo != "" && s.audit != nil {
			op := types.OpInsert
			if usedUpsert {
				op = types.OpUpsert
			}
			if err := s.audit(conn, sc.Name, op, trackInfo, row); err != nil {
				return affected, opNone, errStep("audit", err)
			}
		}
	}

	op := types.OpInsert
	if upserts > 0 && inserts == 0 {
		op = types.OpUpsert
	}
	return affected, op, nil
}

// opNone is the placeholder Op returned alongside errors.
const opNone = types.OpInsert

// bindRow binds one row against a statement's plan. PK slots bind the
// synthesized id when one is supplied (absent or invalid PK); columns
// the row does not carry bind NULL.
func (s *Storage) bindRow(stmt driver.Statement, plan []sqlgen.BindSlot, row *jsondoc.Object, synthesized jsondoc.Value) error {
	for _, slot := range plan {
		var v jsondoc.Value
		if slot.IsPK && synthesized != nil {
			v = synthesized
		} else {
			v, _ = row.Get(slot.Column)
		}
		if err := stmt.Bind(slot.Index, v, slot.Type); err != nil {
			return err
		}
	}
	return nil
}

// Update writes non-PK fields of each row by primary key. Every row
// must carry a valid PK.
func (s *Storage) Update(name string, payload []byte, trackInfo string) (int64, error) {
	sc, rows, err := s.resolve(name, payload)
	if err != nil {
		return 0, err
	}
	pk, ok := sc.PK()
	if !ok {
		return 0, types.ErrNoPk
	}

	stmt, err := sqlgen.Update(sc, jsondoc.Value(rows[0]), s.dialect)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = s.withWrite(func(conn driver.Conn) error {
		upd, err := conn.Prepare(stmt.SQL, stmt.ExpectedParams)
		if err != nil {
			return errStep("prepare update", err)
		}
		defer upd.Close()

		for _, row := range rows {
			if v, ok := row.Get(pk.Name); !ok || !pkValid(v, pk.Type) {
				return types.ErrMissingPk
			}
			if err := s.bindRow(upd, stmt.Bind, row, nil); err != nil {
				return err
			}
			n, err := upd.Exec()
			if err != nil {
				return err
			}
			affected += n
			if trackInfo != "" && s.audit != nil {
				if err := s.audit(conn, sc.Name, types.OpUpdate, trackInfo, row); err != nil {
					return errStep("audit", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.notifyHook(name, types.OpUpdate)
	return affected, nil
}

// Delete removes each row by primary key. Every row must carry a valid
// PK.
func (s *Storage) Delete(name string, payload []byte, trackInfo string) (int64, error) {
	sc, rows, err := s.resolve(name, payload)
	if err != nil {
		return 0, err
	}
	pk, ok := sc.PK()
	if !ok {
		return 0, types.ErrNoPk
	}

	stmt, err := sqlgen.Delete(sc, s.dialect)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = s.withWrite(func(conn driver.Conn) error {
		del, err := conn.Prepare(stmt.SQL, stmt.ExpectedParams)
		if err != nil {
			return errStep("prepare delete", err)
		}
		defer del.Close()

		for _, row := range rows {
			v, ok := row.Get(pk.Name)
			if !ok || !pkValid(v, pk.Type) {
				return types.ErrMissingPk
			}
			if err := del.Bind(1, v, pk.Type); err != nil {
				return err
			}
			n, err := del.Exec()
			if err != nil {
				return err
			}
			affected += n
			if trackInfo != "" && s.audit != nil {
				if err := s.audit(conn, sc.Name, types.OpDelete, trackInfo, row); err != nil {
					return errStep("audit", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.notifyHook(name, types.OpDelete)
	return affected, nil
}

// resolve looks up the active schema and normalizes the payload rows.
func (s *Storage) resolve(name string, payload []byte) (*types.Schema, []*jsondoc.Object, error) {
	sc, err := s.GetSchema(name)
	if err != nil {
		return nil, nil, err
	}
	rows, err := payloadRows(payload)
	if err != nil {
		return nil, nil, err
	}
	return sc, rows, nil
}

func payloadRows(payload []byte) ([]*jsondoc.Object, error) {
	val, err := jsondoc.Parse(payload)
	if err != nil {
		return nil, err
	}
	rows, ok := jsondoc.Rows(val)
	if !ok || len(rows) == 0 {
		return nil, types.ErrEmptyPayload
	}
	return rows, nil
}

// withWrite brackets fn in a write lease and transaction. The whole
// payload commits or rolls back as a unit.
func (s *Storage) withWrite(fn func(conn driver.Conn) error) error {
	return s.withTx(fn)
}
