package gqlerrors

import "fmt"

func fmtErr(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
