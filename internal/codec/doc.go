/*
Package codec implements the serialization boundary between execution
contexts.

Every value crossing a worker channel passes through Marshal on the
sending side and Unmarshal on the receiving side, so the receiver always
observes a copy. There is no way to smuggle a live reference, a function,
or a host object across the boundary: Marshal validates the full value
graph before encoding and fails with a typed *NotSerializableError
instead of emitting a partial encoding.

The wire representation is JSON (encoded with bytedance/sonic). The
canonical value tree on the receiving side is therefore:

	nil | bool | float64 | string | []any | map[string]any

Go integers are accepted on the sending side and normalize to float64
after a round trip.
*/
package codec
