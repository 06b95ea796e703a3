package config

import "log"

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustKeys(keys [][]byte, envName string) {
	if len(keys) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
	for _, k := range keys {
		if len(k) == 0 {
			log.Fatalf("empty signing key in %s", envName)
		}
	}
}
