package stake

// Available reports the whole day-units a record can release at now. A new
// record is treated as last claimed one day-unit ago. When the clock is not
// past the baseline no credit is available.
func Available(now int64, rec *Record) Window {
	baseline := now - SecondsPerDay
	if rec.Initialized() {
		baseline = rec.Watermark
	}
	var elapsed uint64
	if now > baseline {
		elapsed = uint64((now - baseline) / SecondsPerDay)
	}
	return Window{
		Baseline:    baseline,
		ElapsedDays: elapsed,
		NextUnlock:  baseline + int64(elapsed+1)*SecondsPerDay,
	}
}

// Advance consumes days from the record's credit and returns the updated
// record. The watermark moves from the baseline by exactly days whole
// day-units, so credit left unclaimed stays available. The input record is
// not modified.
func Advance(now int64, rec *Record, days uint64) (Record, Window, error) {
	if days == 0 {
		return Record{}, Window{}, ErrZeroDaysRequested
	}
	window := Available(now, rec)
	// Checked before the multiplication below so huge requests cannot wrap.
	if days > window.ElapsedDays {
		return Record{}, window, ErrInsufficientElapsedDays
	}
	return Record{Watermark: window.Baseline + int64(days)*SecondsPerDay}, window, nil
}
