// Package wire implements the terminal protocol framing.
//
// Frames are UTF-8 text terminated by "\r\n". A frame is a comma-separated
// list whose first element is a one-character command tag:
//
//	p\r\n                                      liveness ping
//	t,src,instr,tf,ot,o,h,l,c,spread,st\r\n    candle update
//
// Replies use the same framing.
package wire
