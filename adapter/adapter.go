package adapter

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mklimuk/arinc429"
)

var ErrUnknownAdapter = errors.New("unknown adapter")

var drivers = map[string]func() (arinc429.Card, error){
	"sim": func() (arinc429.Card, error) {
		return NewSimulator(), nil
	},
}

func register(name string, open func() (arinc429.Card, error)) {
	drivers[name] = open
}

// New returns the card driver registered under name.
func New(name string) (arinc429.Card, error) {
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownAdapter, name, strings.Join(Names(), ", "))
	}
	return open()
}

func Names() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
