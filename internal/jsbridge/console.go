package jsbridge

import (
	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// consoleJS builds a console object whose methods forward to __xchg_console.
// Typed arrays print with their kind and first elements.
const consoleJS = `
(function() {
	function fmt(arg) {
		if (ArrayBuffer.isView(arg) && !(arg instanceof DataView)) {
			var name = Object.prototype.toString.call(arg).slice(8, -1);
			var head = Array.prototype.slice.call(arg, 0, 16).join(', ');
			return name + '(' + arg.length + ') [' + head + (arg.length > 16 ? ', ...' : '') + ']';
		}
		if (arg instanceof ArrayBuffer) return 'ArrayBuffer(' + arg.byteLength + ')';
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return '[object Object]'; }
		}
		return String(arg);
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(fmt(arguments[j]));
				__xchg_console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	globalThis.console = con;
})();
`

// InstallConsole replaces globalThis.console with one that writes to logger.
func InstallConsole(rt core.JSRuntime, logger *zap.Logger) error {
	log := logger.With(zap.String("component", "console"))
	if err := rt.RegisterFunc("__xchg_console", func(level, message string) {
		switch level {
		case "error":
			log.Error(message)
		case "warn":
			log.Warn(message)
		case "debug":
			log.Debug(message)
		default:
			log.Info(message)
		}
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
