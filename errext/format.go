package errext

import "errors"

// Format splits err into the message shown to the user and the fields
// logged along with it: the hint, if any, and the exit status when the
// error picked one.
func Format(err error) (string, map[string]interface{}) {
	if err == nil {
		return "", nil
	}

	fields := make(map[string]interface{})
	var herr HasHint
	if errors.As(err, &herr) {
		fields["hint"] = herr.Hint()
	}
	var ecerr HasExitCode
	if errors.As(err, &ecerr) {
		fields["exit_code"] = int(ecerr.ExitCode())
	}

	return err.Error(), fields
}
