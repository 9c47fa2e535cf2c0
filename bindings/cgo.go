package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"

	"github.com/nickyhof/orpheusplus/config"
)

//export orpheusplus_open_memory
func orpheusplus_open_memory(user *C.char) C.int {
	cfg := config.Default()
	if name := C.GoString(user); name != "" {
		cfg.User = name
	}
	handle, err := open(cfg)
	if err != nil {
		return -1
	}
	return C.int(handle)
}

//export orpheusplus_open_config
func orpheusplus_open_config(path *C.char) C.int {
	cfg, err := config.Load(C.GoString(path))
	if err != nil {
		return -1
	}
	handle, err := open(cfg)
	if err != nil {
		return -1
	}
	return C.int(handle)
}

//export orpheusplus_close
func orpheusplus_close(handle C.int) {
	closeHandle(int(handle))
}

//export orpheusplus_execute
func orpheusplus_execute(handle C.int, query *C.char) *C.char {
	return C.CString(string(execute(int(handle), C.GoString(query))))
}

//export orpheusplus_free
func orpheusplus_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func main() {}
