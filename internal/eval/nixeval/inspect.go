package nixeval

// inspectExpr is the Nix expression handed to nix-instantiate for every
// attribute path. It walks the path from the root value, auto-calling
// functions with the intersecting auto-arguments along the way, and prints a
// JSON classification of the value it lands on. Derivations are checked
// before plain attribute sets since a derivation is itself an attribute set
// tagged type = "derivation".
const inspectExpr = `
attrPath: autoArgs: root:
let
  # split "" yields [ "" ], not [ ]; the root path has no segments to walk.
  parts =
    if attrPath == "" then [ ]
    else builtins.filter builtins.isString (builtins.split "\\." attrPath);

  autoCall = f:
    if builtins.isFunction f
    then f (builtins.intersectAttrs (builtins.functionArgs f) autoArgs)
    else f;

  select = v: path:
    if path == [ ] then v
    else
      let
        name = builtins.head path;
        v' = autoCall v;
      in
        if builtins.isAttrs v' && v' ? ${name}
        then select v'.${name} (builtins.tail path)
        else throw "attribute '${name}' in selection path '${attrPath}' not found";

  v = autoCall (select root parts);

  isDerivation = x: builtins.isAttrs x && (x.type or "") == "derivation";
in
if isDerivation v then
  if (v.system or "unknown") == "unknown"
  then throw "derivation must have a 'system' attribute"
  else {
    type = "job";
    drvPath = v.drvPath;
    name = v.name or "";
    system = v.system;
  }
else if builtins.isAttrs v then {
  type = "attrs";
  names = builtins.attrNames v;
}
else if v == null then { type = "null"; }
else throw "attribute '${attrPath}' has an unsupported value type"
`
