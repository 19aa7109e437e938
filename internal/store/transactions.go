package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/shopspring/decimal"
)

var ErrReportItemNotFound = errors.New("report item not found")

type TransactionInput struct {
	OwnerID  uuid.UUID
	Number   string
	Total    decimal.Decimal
	Tendered decimal.Decimal
	Change   decimal.Decimal
}

type ItemInput struct {
	ProductID uuid.NullUUID
	Name      string
	Weight    string
	Price     decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
}

const transactionColumns = `id, user_id, transaction_number, total_amount, customer_money, change_amount, created_at`

const itemColumns = `id, transaction_id, product_id, product_name, product_weight, price, quantity, subtotal, created_at`

func scanTransaction(row rowScanner, txn *models.Transaction) error {
	return row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.TransactionNumber,
		&txn.TotalAmount,
		&txn.CustomerMoney,
		&txn.ChangeAmount,
		&txn.CreatedAt,
	)
}

func scanItem(row rowScanner, item *models.TransactionItem) error {
	return row.Scan(
		&item.ID,
		&item.TransactionID,
		&item.ProductID,
		&item.ProductName,
		&item.ProductWeight,
		&item.Price,
		&item.Quantity,
		&item.Subtotal,
		&item.CreatedAt,
	)
}

// CreateTransaction inserts a transaction header on its own.
func (s *Store) CreateTransaction(ctx context.Context, in TransactionInput) (*models.Transaction, error) {
	txn := &models.Transaction{}

	query := `
		INSERT INTO transactions (user_id, transaction_number, total_amount, customer_money, change_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + transactionColumns

	err := scanTransaction(s.db.QueryRowContext(ctx, query,
		in.OwnerID, in.Number, in.Total, in.Tendered, in.Change), txn)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	return txn, nil
}

// InsertItems inserts all line items of a transaction as one atomic batch.
func (s *Store) InsertItems(ctx context.Context, transactionID uuid.UUID, items []ItemInput) ([]models.TransactionItem, error) {
	var inserted []models.TransactionItem

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		inserted = make([]models.TransactionItem, 0, len(items))
		for _, in := range items {
			var item models.TransactionItem
			err := scanItem(insertItem(ctx, tx, transactionID, in), &item)
			if err != nil {
				return fmt.Errorf("create transaction item %s: %w", in.Name, err)
			}
			inserted = append(inserted, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

func insertItem(ctx context.Context, q database.Querier, transactionID uuid.UUID, in ItemInput) *sql.Row {
	return q.QueryRowContext(ctx,
		`INSERT INTO transaction_items (transaction_id, product_id, product_name, product_weight, price, quantity, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING `+itemColumns,
		transactionID, in.ProductID, in.Name, in.Weight, in.Price, in.Quantity, in.Subtotal)
}

func (s *Store) DeleteItems(ctx context.Context, transactionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transaction_items WHERE transaction_id = $1`,
		transactionID)
	if err != nil {
		return fmt.Errorf("delete transaction items: %w", err)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, transactionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`,
		transactionID, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id uuid.UUID) (*models.Transaction, error) {
	txn := &models.Transaction{}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND user_id = $2`

	err := scanTransaction(s.db.QueryRowContext(ctx, query, id, ownerID), txn)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	txns := []models.Transaction{*txn}
	if err := s.attachItems(ctx, txns); err != nil {
		return nil, err
	}

	return &txns[0], nil
}

// ListTransactions pages through the owner's transactions newest first, with
// their line items.
func (s *Store) ListTransactions(ctx context.Context, ownerID uuid.UUID, cursor string, limit int) (*CursorPage[models.Transaction], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Msg: "invalid cursor", Err: err}
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	txns, err := s.queryTransactions(ctx, query, ownerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(txns) > limit
	if hasMore {
		txns = txns[:limit]
	}

	if err := s.attachItems(ctx, txns); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(txns) > 0 {
		last := txns[len(txns)-1]
		nextCursor = EncodeCursor(TransactionCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage[models.Transaction]{
		Items:      txns,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListTransactionsWithItems returns every transaction of the owner, newest
// first, with items. Reports aggregate over this.
func (s *Store) ListTransactionsWithItems(ctx context.Context, ownerID uuid.UUID) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	txns, err := s.queryTransactions(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// ListTransactionsSince returns the owner's transactions created at or after since.
func (s *Store) ListTransactionsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC`

	txns, err := s.queryTransactions(ctx, query, ownerID, since)
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) RecentTransactions(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	txns, err := s.queryTransactions(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// AddAdjustment records a manual report line as its own transaction with one
// item, no product reference and no change.
func (s *Store) AddAdjustment(ctx context.Context, ownerID uuid.UUID, number string, in ItemInput) (*models.Transaction, error) {
	txn := &models.Transaction{}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanTransaction(tx.QueryRowContext(ctx,
			`INSERT INTO transactions (user_id, transaction_number, total_amount, customer_money, change_amount, created_at)
			 VALUES ($1, $2, $3, $3, 0, NOW())
			 RETURNING `+transactionColumns,
			ownerID, number, in.Subtotal), txn)
		if err != nil {
			return fmt.Errorf("create adjustment: %w", err)
		}

		var item models.TransactionItem
		in.ProductID = uuid.NullUUID{}
		if err := scanItem(insertItem(ctx, tx, txn.ID, in), &item); err != nil {
			return fmt.Errorf("create adjustment item: %w", err)
		}
		txn.Items = []models.TransactionItem{item}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// UpdateReportItem rewrites the first of the owner's items named oldName and
// deletes the rest, so the report shows a single consolidated row.
func (s *Store) UpdateReportItem(ctx context.Context, ownerID uuid.UUID, oldName string, in ItemInput) error {
	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT ti.id
			 FROM transaction_items ti
			 JOIN transactions t ON t.id = ti.transaction_id
			 WHERE t.user_id = $1 AND ti.product_name = $2
			 ORDER BY ti.created_at, ti.id`,
			ownerID, oldName)
		if err != nil {
			return fmt.Errorf("find report items: %w", err)
		}

		var ids []string
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan report item: %w", err)
			}
			ids = append(ids, id.String())
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(ids) == 0 {
			return ErrReportItemNotFound
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE transaction_items
			 SET product_name = $1, product_weight = $2, price = $3, quantity = $4, subtotal = $5
			 WHERE id = $6`,
			in.Name, in.Weight, in.Price, in.Quantity, in.Subtotal, ids[0])
		if err != nil {
			return fmt.Errorf("update report item: %w", err)
		}

		if len(ids) > 1 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM transaction_items WHERE id = ANY($1::uuid[])`,
				pq.Array(ids[1:]))
			if err != nil {
				return fmt.Errorf("consolidate report items: %w", err)
			}
		}

		return nil
	})
}

// DeleteReportItem removes every item of the owner with the given product name.
func (s *Store) DeleteReportItem(ctx context.Context, ownerID uuid.UUID, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transaction_items ti
		 USING transactions t
		 WHERE t.id = ti.transaction_id
		   AND t.user_id = $1
		   AND ti.product_name = $2`,
		ownerID, name)
	if err != nil {
		return 0, fmt.Errorf("delete report items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrReportItemNotFound
	}

	return rowsAffected, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		if err := scanTransaction(rows, &txn); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return txns, nil
}

// attachItems loads the line items of txns with one query.
func (s *Store) attachItems(ctx context.Context, txns []models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	ids := make([]string, len(txns))
	index := make(map[uuid.UUID]int, len(txns))
	for i, txn := range txns {
		ids[i] = txn.ID.String()
		index[txn.ID] = i
		txns[i].Items = []models.TransactionItem{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+`
		 FROM transaction_items
		 WHERE transaction_id = ANY($1::uuid[])
		 ORDER BY created_at, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get transaction items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TransactionItem
		if err := scanItem(rows, &item); err != nil {
			return fmt.Errorf("scan transaction item: %w", err)
		}
		if i, ok := index[item.TransactionID]; ok {
			txns[i].Items = append(txns[i].Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}
