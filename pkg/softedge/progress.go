package softedge

// progressReporter turns row completions into 10% steps. It is owned by the
// goroutine that drains the row channel, so it needs no locking.
type progressReporter struct {
	total    int
	done     int
	reported int
	fn       func(percent int)
}

func newProgressReporter(total int, fn func(percent int)) *progressReporter {
	return &progressReporter{total: total, reported: -1, fn: fn}
}

func (r *progressReporter) start() {
	r.emit(0)
}

func (r *progressReporter) add(rows int) {
	r.done += rows
	if r.total == 0 {
		return
	}
	step := r.done * 100 / r.total / 10 * 10
	if step > r.reported {
		r.emit(step)
	}
}

func (r *progressReporter) finish() {
	if r.reported < 100 {
		r.emit(100)
	}
}

func (r *progressReporter) emit(percent int) {
	r.reported = percent
	if r.fn != nil {
		r.fn(percent)
	}
}
