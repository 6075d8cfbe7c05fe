package sandbox

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
)

// preludeSource evaluates to a factory that builds resource accessors around a
// host bridge. It binds nothing globally.
const preludeSource = `(function (bridge, parse, stringify) {
	"use strict";
	function invoke(name, operation, payload) {
		return bridge(name, operation, stringify(payload));
	}
	return {
		database: function (name) {
			return Object.freeze({
				query: async function (sql, params) {
					var raw = await invoke(name, "query", { sql: sql, params: params === undefined ? [] : params });
					return parse(raw);
				}
			});
		},
		api: function (name) {
			return Object.freeze({
				request: async function (method, path, options) {
					var raw = await invoke(name, "request", { method: method, path: path, options: options === undefined ? {} : options });
					return parse(raw);
				}
			});
		}
	};
})`

var prelude = goja.MustCompile("prelude.js", preludeSource, true)

const (
	toolPrefix = "(async function () {\n"
	toolSuffix = "\n})"
)

// compileTool wraps code as the body of an async function and compiles it.
// The parsed program must be exactly that one function expression, so code
// cannot close the wrapper early and run statements outside it.
func compileTool(code string) (*goja.Program, error) {
	parsed, err := goja.Parse("tool.js", toolPrefix+code+toolSuffix)
	if err != nil {
		return nil, &CompileError{Message: err.Error()}
	}

	if len(parsed.Body) != 1 {
		return nil, &CompileError{Message: "code escapes function body"}
	}
	stmt, ok := parsed.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, &CompileError{Message: "code escapes function body"}
	}
	fn, ok := stmt.Expression.(*ast.FunctionLiteral)
	if !ok || !fn.Async || fn.Generator {
		return nil, &CompileError{Message: "code escapes function body"}
	}

	prg, err := goja.CompileAST(parsed, false)
	if err != nil {
		return nil, &CompileError{Message: err.Error()}
	}
	return prg, nil
}
