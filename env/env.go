package env

import "flag"

type Args struct {
	Test    *bool
	NoWow   *bool
	Verbose *bool
	Reduce  *bool
	Bus     *string
}

// ParseArgs registers the command line flags and parses them.
func ParseArgs() Args {
	a := Args{
		Test:    flag.Bool("test", false, "test mode, does not send met office data or serve metrics"),
		NoWow:   flag.Bool("nowow", false, "disable the met office WOW reporter"),
		Verbose: flag.Bool("verbose", false, "debug logging"),
		Reduce:  flag.Bool("reduce", false, "run a single reduction pass over pending batches and exit"),
		Bus:     flag.String("bus", "", "I²C bus (/dev/i2c-1)"),
	}
	flag.Parse()
	return a
}
