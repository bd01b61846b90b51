package greenchoice

import "greenchoice-scraper/lib/restyutil"

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput dumps every request and response this package
// makes to the given output. Must be called before NewClient to take
// effect.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyInstrumentOutput = output
}
