package hal

import "strings"

// ParseCmdLine splits a boot command line into key/value pairs. Each field is
// either "key=value" or a bare "flag", in which case the flag name is also
// used as its value. Fields with more than one '=' are ignored.
func ParseCmdLine(cmdLine string) map[string]string {
	kv := make(map[string]string)

	for _, pair := range strings.Fields(cmdLine) {
		parts := strings.Split(pair, "=")
		switch len(parts) {
		case 2: // foo=bar
			kv[parts[0]] = parts[1]
		case 1: // nofoo
			kv[parts[0]] = parts[0]
		}
	}

	return kv
}
