package jsbridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cryguy/xchg/internal/core"
)

// setupPinsJS installs the pin table and the value helpers as
// non-enumerable globals so that scripts iterating globalThis do not see
// them. The helpers capture the intrinsic accessors before any script runs:
// an own Symbol.toStringTag, a swapped prototype or a replaced global
// constructor cannot change what they report.
const setupPinsJS = `
(function() {
	if (Object.prototype.hasOwnProperty.call(globalThis, '__xchg_pins')) return;
	var apply = Reflect.apply;
	var TypedArrayProto = Object.getPrototypeOf(Int8Array.prototype);
	function getter(proto, name) { return Object.getOwnPropertyDescriptor(proto, name).get; }
	var viewTag = getter(TypedArrayProto, Symbol.toStringTag);
	var viewBuffer = getter(TypedArrayProto, 'buffer');
	var viewOffset = getter(TypedArrayProto, 'byteOffset');
	var viewLength = getter(TypedArrayProto, 'byteLength');
	var viewSet = TypedArrayProto.set;
	var bufferLength = getter(ArrayBuffer.prototype, 'byteLength');
	var U8 = Uint8Array;
	var ctors = {
		Int8Array: Int8Array, Int16Array: Int16Array, Int32Array: Int32Array,
		Uint8Array: Uint8Array, Uint8ClampedArray: Uint8ClampedArray,
		Uint16Array: Uint16Array, Uint32Array: Uint32Array,
		Float32Array: Float32Array, Float64Array: Float64Array,
		ArrayBuffer: ArrayBuffer
	};
	if (typeof SharedArrayBuffer === 'function') ctors.SharedArrayBuffer = SharedArrayBuffer;

	// kind returns [[TypedArrayName]] for views, 'ArrayBuffer' for
	// non-shared buffers and '' for everything else.
	function kind(v) {
		if (v === null || (typeof v !== 'object' && typeof v !== 'function')) return '';
		var name = apply(viewTag, v, []);
		if (typeof name === 'string') return name;
		try { apply(bufferLength, v, []); return 'ArrayBuffer'; } catch (e) { return ''; }
	}
	function bytes(v) {
		if (kind(v) === 'ArrayBuffer') return new U8(v);
		return new U8(apply(viewBuffer, v, []), apply(viewOffset, v, []), apply(viewLength, v, []));
	}
	function byteLength(v) {
		return kind(v) === 'ArrayBuffer' ? apply(bufferLength, v, []) : apply(viewLength, v, []);
	}
	function make(name, buf) {
		return name === 'ArrayBuffer' ? buf : new ctors[name](buf);
	}
	function copy(dst, src) { apply(viewSet, dst, [src]); }
	// clone copies src into a new buffer made by the named constructor.
	function clone(src, name) {
		var out = new ctors[name](apply(viewLength, src, []));
		copy(new U8(out), src);
		return out;
	}

	var helpers = {
		__xchg_pins: Object.create(null),
		__xchg_kind: kind, __xchg_bytes: bytes, __xchg_byte_length: byteLength,
		__xchg_make: make, __xchg_copy: copy, __xchg_clone: clone
	};
	for (var name in helpers) {
		Object.defineProperty(globalThis, name, {
			value: helpers[name], writable: name === '__xchg_pins', enumerable: false, configurable: false
		});
	}
})();
`

// resetPinsJS drops every pinned value and any temporary transfer globals.
const resetPinsJS = `
(function() {
	globalThis.__xchg_pins = Object.create(null);
	var names = Object.getOwnPropertyNames(globalThis);
	for (var i = 0; i < names.length; i++) {
		if (names[i].indexOf('__tmp_') === 0) {
			try { delete globalThis[names[i]]; } catch(e) {}
		}
	}
})();
`

// createJS builds the typed array from the staged ArrayBuffer and pins it.
// An ArrayBuffer request pins the staged buffer itself.
func createJS(key pinKey, kind core.ElementKind) string {
	return fmt.Sprintf(`(function() {
		var buf = globalThis[%q];
		delete globalThis[%q];
		%s = __xchg_make(%q, buf);
	})()`, inGlobal, inGlobal, key.expr(), kind.String())
}

// updateJS copies the staged bytes over the pinned value in a single
// statement so no script runs against a half-written array.
func updateJS(key pinKey) string {
	return fmt.Sprintf(`(function() {
		var src = __xchg_bytes(globalThis[%q]);
		delete globalThis[%q];
		__xchg_copy(__xchg_bytes(%s), src);
	})()`, inGlobal, inGlobal, key.expr())
}

// snapshotJS copies the pinned value's bytes into a fresh buffer of the
// type the transferer reads ("ab" or "sab").
func snapshotJS(key pinKey, mode string) string {
	alloc := "ArrayBuffer"
	if mode == "sab" {
		alloc = "SharedArrayBuffer"
	}
	return fmt.Sprintf(`(function() {
		globalThis[%q] = __xchg_clone(__xchg_bytes(%s), %q);
	})()`, outGlobal, key.expr(), alloc)
}

// unpinJS deletes the given pin keys in one evaluation.
func unpinJS(keys []int64) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.FormatInt(k, 10)
	}
	return fmt.Sprintf(`(function(ks) {
		for (var i = 0; i < ks.length; i++) { delete globalThis.__xchg_pins[ks[i]]; }
	})([%s])`, strings.Join(parts, ","))
}
