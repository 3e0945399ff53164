package db

import (
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
)

// The booking subsystem owns these rows; the engine only counts them.

func (t *storeTx) ActiveBookingCount(excursionID int) (int, error) {
	var n int
	err := t.tx.Get(&n, `
	SELECT count(*) FROM bookings
	WHERE excursion_id = $1 AND status = 'confirmed';`, excursionID)
	if err != nil {
		log.Error().Err(err).Int("excursion_id", excursionID).Msg("ActiveBookingCount failed")
		return 0, err
	}
	return n, nil
}

func CreateBooking(excursionID int, diverName, diverEmail string) (model.Booking, error) {
	var b model.Booking
	const q = `
	INSERT INTO bookings (excursion_id, diver_name, diver_email, status, created_at)
	VALUES ($1, $2, $3, 'confirmed', now())
	RETURNING id, excursion_id, diver_name, diver_email, status, created_at;`
	if err := DB.Get(&b, q, excursionID, diverName, diverEmail); err != nil {
		log.Error().Err(err).Int("excursion_id", excursionID).Msg("CreateBooking failed")
		return model.Booking{}, err
	}
	return b, nil
}

func CancelBooking(bookingID int) error {
	_, err := DB.Exec(`
	UPDATE bookings
	SET status = 'cancelled'
	WHERE id = $1;`, bookingID)
	if err != nil {
		log.Error().Err(err).Int("booking_id", bookingID).Msg("CancelBooking failed")
	}
	return err
}
