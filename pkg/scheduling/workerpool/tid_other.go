//go:build !linux

package workerpool

func threadID() int {
	return -1
}
