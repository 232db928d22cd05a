package user

import "errors"

var ErrEncode = errors.New("user: failed to encode user")
