package gateway

import "time"

// timeNow stamps presence and error envelopes. Overridable in tests; bid and
// lifecycle decisions take their time from the sequencer's injected clock,
// never from here.
var timeNow = time.Now
