package bundle

// prelude defines the module registry the emitted factories run in. __d
// registers a factory, __r evaluates a module once and returns its exports.
const prelude = `(function (global) {
  var modules = Object.create(null);
  function define(factory, id, deps) {
    deps = deps || [];
    deps.paths = {};
    modules[id] = { factory: factory, deps: deps, module: null };
  }
  function require(id) {
    if (id == null) {
      throw new Error('Cannot find module');
    }
    var record = modules[id];
    if (!record) {
      throw new Error('Requiring unknown module "' + id + '"');
    }
    if (record.module) {
      return record.module.exports;
    }
    var module = (record.module = { exports: {} });
    record.factory(global, require, importDefault, importAll, module, module.exports, record.deps);
    return module.exports;
  }
  function importDefault(id) {
    var exports = require(id);
    return exports && exports.__esModule ? exports.default : exports;
  }
  function importAll(id) {
    var exports = require(id);
    if (exports && exports.__esModule) {
      return exports;
    }
    var ns = {};
    if (exports != null) {
      for (var key in exports) {
        if (Object.prototype.hasOwnProperty.call(exports, key)) {
          ns[key] = exports[key];
        }
      }
    }
    ns.default = exports;
    return ns;
  }
  global.__d = define;
  global.__r = require;
})(typeof globalThis !== 'undefined' ? globalThis : this);
`
