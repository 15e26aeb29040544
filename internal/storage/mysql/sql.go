package mysql

const (
	roomColumns = `r.id, r.branch_id, r.name, r.price_per_hour, r.is_available,
	b.id, b.owner_id, b.name, b.work_days, b.open_time, b.close_time, b.is_active`

	getRoomSQL = `SELECT ` + roomColumns + `
FROM rooms r JOIN branches b ON b.id = r.branch_id
WHERE r.id = ?`

	// Locks only the room row; the branch is read without a lock.
	lockRoomSQL = `SELECT ` + roomColumns + `
FROM rooms r JOIN branches b ON b.id = r.branch_id
WHERE r.id = ?
FOR UPDATE OF r`

	// Existing [start_time, end_time) against requested [?, ?): starts inside,
	// ends inside, or is contained. Args: start, start, end, end, start, end.
	overlapSQL = `SELECT EXISTS (
  SELECT 1 FROM bookings
  WHERE room_id = ?
    AND status <> 'cancelled'
    AND ((start_time <= ? AND end_time > ?)
      OR (start_time < ? AND end_time >= ?)
      OR (start_time >= ? AND end_time <= ?))
)`

	promotionColumns = `p.id, p.title, p.discount_percent, p.start_date, p.end_date, p.is_active`

	// Largest discount wins inside one scope; id breaks ties.
	promotionWindow = `
  AND p.is_active = 1
  AND p.start_date <= ? AND p.end_date >= ?
ORDER BY p.discount_percent DESC, p.id ASC
LIMIT 1`

	roomPromotionSQL = `SELECT ` + promotionColumns + `
FROM promotions p JOIN room_promotions rp ON rp.promotion_id = p.id
WHERE p.target_type = 'room' AND rp.room_id = ?` + promotionWindow

	branchPromotionSQL = `SELECT ` + promotionColumns + `
FROM promotions p JOIN branch_promotions bp ON bp.promotion_id = p.id
WHERE p.target_type = 'branch' AND bp.branch_id = ?` + promotionWindow

	globalPromotionSQL = `SELECT ` + promotionColumns + `
FROM promotions p
WHERE p.target_type = 'global'` + promotionWindow

	getPromotionSQL = `SELECT ` + promotionColumns + `, p.target_type FROM promotions p WHERE p.id = ?`

	promotionRoomsSQL    = `SELECT room_id FROM room_promotions WHERE promotion_id = ? ORDER BY room_id`
	promotionBranchesSQL = `SELECT branch_id FROM branch_promotions WHERE promotion_id = ? ORDER BY branch_id`

	getCustomerSQL = `SELECT id, first_name, last_name, email FROM customers WHERE id = ?`

	bookingColumns = `id, customer_id, room_id, start_time, end_time, total_price, promotion_id, status, created_at, updated_at`

	getBookingSQL          = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	getBookingForUpdateSQL = getBookingSQL + ` FOR UPDATE`

	insertBookingSQL = `INSERT INTO bookings (` + bookingColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?)`

	updateBookingStatusSQL = `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	listCustomerBookingsSQL = `SELECT ` + bookingColumns + ` FROM bookings
WHERE customer_id = ? AND (? = '' OR status = ?)
ORDER BY start_time DESC, id
LIMIT ?`

	paymentColumns = `id, booking_id, transaction_id, amount, currency, payment_method, status, status_code,
	COALESCE(qr_string, ''), COALESCE(qr_image, ''), COALESCE(abapay_deeplink, ''),
	original_amount, refund_amount, discount_amount, apv, transaction_date, paid_at, last_checked_at,
	created_at, updated_at`

	getPaymentByTxSQL      = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = ?`
	getPaymentForUpdateSQL = getPaymentByTxSQL + ` FOR UPDATE`
	listPaymentsSQL        = `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? ORDER BY created_at DESC, id`
	hasCompletedPaymentSQL = `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = ? AND status = 'completed')`
	listStalePaymentsSQL   = `SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'pending' AND COALESCE(last_checked_at, created_at) < ?
ORDER BY created_at
LIMIT ?`

	insertPaymentSQL = `INSERT INTO payments
  (id, booking_id, transaction_id, amount, currency, payment_method, status, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`

	recordChargeSQL = `UPDATE payments
SET qr_string = ?, qr_image = ?, abapay_deeplink = ?, currency = COALESCE(NULLIF(?, ''), currency), updated_at = ?
WHERE transaction_id = ?`

	markPaymentFailedSQL = `UPDATE payments
SET status = 'failed', last_checked_at = ?, updated_at = ?
WHERE transaction_id = ? AND status NOT IN ('completed', 'refunded')`

	// The status guard makes settlement apply at most once per transaction.
	settlePaymentSQL = `UPDATE payments
SET status = ?, status_code = ?, original_amount = ?, refund_amount = ?, discount_amount = ?,
    apv = ?, transaction_date = ?, last_checked_at = ?, paid_at = COALESCE(?, paid_at), updated_at = ?
WHERE transaction_id = ? AND status NOT IN ('completed', 'refunded')`
)
