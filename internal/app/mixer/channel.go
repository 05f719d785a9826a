package mixer

// channel owns the state of one playback slot. All fields are guarded by
// the engine lock; the mix tick and the dispatcher operations both mutate
// them under it.
type channel struct {
	index int

	active *playback // the sound currently audible, or nil
	queued *playback // at most one pending sound, or nil
	fading *playback // superseded active finishing its fade-out, or nil

	// hold applies the sequenced fade policy: the new active sound is
	// installed but not mixed until the fading slot drains.
	hold bool

	paused   bool
	volume   float64
	endEvent int
}

func newChannel(index int) *channel {
	return &channel{index: index, volume: 1.0, endEvent: EventNone}
}

// state derives the observable channel state.
func (c *channel) state() State {
	if c.active == nil && c.fading == nil {
		return StateIdle
	}
	if c.paused {
		return StatePaused
	}
	if c.fading != nil || (c.active != nil && c.active.fade != nil) {
		return StateFadingOut
	}
	return StatePlaying
}

// queueDepth reports the number of sounds waiting behind the active one.
func (c *channel) queueDepth() int {
	if c.queued != nil {
		return 1
	}
	return 0
}
