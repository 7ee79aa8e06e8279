package update

import "os"

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// readFileIfExists returns (nil, nil) when path does not exist, rather
// than an error, so callers can treat "no installed manifest yet" as a
// normal first-install condition.
func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
