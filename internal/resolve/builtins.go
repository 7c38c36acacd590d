package resolve

import "github.com/jward/pytrail/internal/index"

const builtinsModule = "builtins"

var builtinClasses = []string{
	"object", "type", "int", "float", "complex", "bool", "str", "bytes", "bytearray",
	"list", "tuple", "dict", "set", "frozenset", "range", "slice", "memoryview",
	"property", "staticmethod", "classmethod", "super", "enumerate", "zip", "map",
	"filter", "reversed",
	"BaseException", "Exception", "ArithmeticError", "AssertionError", "AttributeError",
	"EOFError", "ImportError", "ModuleNotFoundError", "IndexError", "KeyError",
	"KeyboardInterrupt", "LookupError", "MemoryError", "NameError", "NotImplementedError",
	"OSError", "IOError", "OverflowError", "RecursionError", "RuntimeError",
	"StopIteration", "StopAsyncIteration", "SyntaxError", "SystemExit", "TypeError",
	"UnicodeError", "UnicodeDecodeError", "UnicodeEncodeError", "ValueError",
	"ZeroDivisionError", "FileNotFoundError", "FileExistsError", "PermissionError",
	"TimeoutError", "ConnectionError", "Warning", "UserWarning", "DeprecationWarning",
	"RuntimeWarning",
}

var builtinFunctions = []string{
	"abs", "all", "any", "ascii", "bin", "breakpoint", "callable", "chr", "compile",
	"delattr", "dir", "divmod", "eval", "exec", "format", "getattr", "globals",
	"hasattr", "hash", "help", "hex", "id", "input", "isinstance", "issubclass",
	"iter", "len", "locals", "max", "min", "next", "oct", "open", "ord", "pow",
	"print", "repr", "round", "setattr", "sorted", "sum", "vars", "__import__",
}

var builtinInstances = []string{
	"__name__", "__file__", "__doc__", "__package__", "__spec__", "__loader__",
	"__builtins__", "__debug__", "NotImplemented", "Ellipsis",
}

var builtinTable = func() map[string]index.DefinitionType {
	t := make(map[string]index.DefinitionType)
	for _, n := range builtinClasses {
		t[n] = index.TypeClass
	}
	for _, n := range builtinFunctions {
		t[n] = index.TypeFunction
	}
	for _, n := range builtinInstances {
		t[n] = index.TypeInstance
	}
	return t
}()

// builtinDefinition returns the builtin named name, if any.
func builtinDefinition(name string) (index.Definition, bool) {
	typ, ok := builtinTable[name]
	if !ok {
		return index.Definition{}, false
	}
	def := index.Definition{
		Type:       typ,
		Name:       name,
		ModuleName: builtinsModule,
		FullName:   name,
	}
	if typ == index.TypeInstance {
		def.ModuleName = ""
	}
	return def, true
}

// stdlibModules are top-level standard library modules. Imports of these
// resolve to unlocated module definitions when no source is found on the
// search path.
var stdlibModules = map[string]bool{
	"__future__": true, "abc": true, "argparse": true, "array": true, "ast": true,
	"asyncio": true, "base64": true, "bisect": true, "builtins": true, "codecs": true,
	"collections": true, "concurrent": true, "configparser": true, "contextlib": true,
	"copy": true, "csv": true, "ctypes": true, "dataclasses": true, "datetime": true,
	"decimal": true, "difflib": true, "dis": true, "email": true, "enum": true,
	"errno": true, "fnmatch": true, "fractions": true, "functools": true, "gc": true,
	"getpass": true, "gettext": true, "glob": true, "gzip": true, "hashlib": true,
	"heapq": true, "hmac": true, "html": true, "http": true, "importlib": true,
	"inspect": true, "io": true, "ipaddress": true, "itertools": true, "json": true,
	"keyword": true, "locale": true, "logging": true, "math": true, "mimetypes": true,
	"multiprocessing": true, "numbers": true, "operator": true, "os": true,
	"pathlib": true, "pickle": true, "platform": true, "pprint": true, "queue": true,
	"random": true, "re": true, "secrets": true, "select": true, "shlex": true,
	"shutil": true, "signal": true, "socket": true, "sqlite3": true, "ssl": true,
	"statistics": true, "string": true, "struct": true, "subprocess": true, "sys": true,
	"tarfile": true, "tempfile": true, "textwrap": true, "threading": true, "time": true,
	"timeit": true, "token": true, "tokenize": true, "traceback": true, "types": true,
	"typing": true, "unicodedata": true, "unittest": true, "urllib": true, "uuid": true,
	"warnings": true, "weakref": true, "xml": true, "zipfile": true, "zlib": true,
}
